package notification

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeID(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"bare", "n1", "n1"},
		{"json string", json.RawMessage(`"n2"`), "n2"},
		{"object", json.RawMessage(`{"id":"n3"}`), "n3"},
		{"notificationId", []byte(`{"notificationId":"n4"}`), "n4"},
		{"object as string", `{"id":"n5"}`, "n5"},
		{"entity", Notification{ID: "n6"}, "n6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeID(tc.in)
			if err != nil {
				t.Fatalf("DecodeID: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeRejectsMissingID(t *testing.T) {
	if _, err := Decode(json.RawMessage(`{"title":"x"}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("err = %v", err)
	}
	if _, err := DecodeID(json.RawMessage(`{}`)); !errors.Is(err, ErrMissingID) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Decode(42); !errors.Is(err, ErrUnsupportedData) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeNullReadAtAndMetadata(t *testing.T) {
	n, err := Decode(json.RawMessage(`{"id":"a","readAt":null,"metadata":null,"priority":"high"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n.ReadAt != nil || n.Metadata != nil || n.Priority != PriorityHigh {
		t.Fatalf("decoded = %+v", n)
	}
	if n.Category() != "" {
		t.Fatalf("category = %q", n.Category())
	}
}
