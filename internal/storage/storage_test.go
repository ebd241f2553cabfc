package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "notifysync/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q)=%v,%v want nil,nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func exerciseSeen(t *testing.T, open func() Store) {
	t.Helper()
	ctx := context.Background()
	st := open()

	if _, ok, err := st.GetSeen(ctx, "n1"); err != nil || ok {
		t.Fatalf("GetSeen before put: ok=%v err=%v", ok, err)
	}
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := st.PutSeen(ctx, "n1", until); err != nil {
		t.Fatalf("PutSeen: %v", err)
	}
	if err := st.PutSeen(ctx, "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("PutSeen expired: %v", err)
	}
	if err := st.PutSeen(ctx, "  ", until); err != nil {
		t.Fatalf("PutSeen blank: %v", err)
	}
	got, ok, err := st.GetSeen(ctx, "n1")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("GetSeen=%v,%v,%v want %v", got, ok, err, until)
	}
	if _, ok, _ := st.GetSeen(ctx, "old"); ok {
		t.Fatalf("expired marker reported as seen")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Markers survive a reopen.
	st = open()
	defer st.Close()
	if _, ok, err := st.GetSeen(ctx, "n1"); err != nil || !ok {
		t.Fatalf("after reopen: ok=%v err=%v", ok, err)
	}
}

func TestFileSeenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "notifysync.db")
	exerciseSeen(t, func() Store {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return st
	})
}

func TestSQLiteSeenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifysync.sqlite")
	exerciseSeen(t, func() Store {
		st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return st
	})
}

func TestFileJournalCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 2
	ctx := context.Background()
	until := time.Now().Add(time.Hour)
	for _, k := range []string{"a", "b", "c"} {
		if err := st.PutSeen(ctx, k, until); err != nil {
			t.Fatalf("PutSeen(%s): %v", k, err)
		}
	}
	_ = st.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := st2.GetSeen(ctx, k); !ok {
			t.Fatalf("%s lost across compaction", k)
		}
	}
}

func TestAuditAppend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	entries := []AuditEntry{
		{UserID: "u1", Action: "mark_read", Target: "n1", OK: true, TookMS: 12, RequestID: "r1"},
		{UserID: "u1", Action: "mark_all_read", OK: false, Error: "status 500"},
	}

	fst, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "f.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	sst, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "s.sqlite")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer fst.Close()
	defer sst.Close()

	for _, e := range entries {
		if err := fst.AppendAudit(ctx, e); err != nil {
			t.Fatalf("file AppendAudit: %v", err)
		}
		if err := sst.AppendAudit(ctx, e); err != nil {
			t.Fatalf("sqlite AppendAudit: %v", err)
		}
	}

	got, err := fst.(*fileStore).readAudit()
	if err != nil || len(got) != 2 {
		t.Fatalf("file audit: %v %v", got, err)
	}
	if got[0].Action != "mark_read" || !got[0].OK || got[0].At.IsZero() || got[1].Error != "status 500" {
		t.Fatalf("file audit rows: %+v", got)
	}

	for name, st := range map[string]Store{"file": fst, "sqlite": sst} {
		rows, err := st.RecentAudit(ctx, 10)
		if err != nil || len(rows) != 2 {
			t.Fatalf("%s audit: %v %v", name, rows, err)
		}
		if rows[0].Action != "mark_all_read" || rows[0].OK || rows[1].Target != "n1" || rows[1].RequestID != "r1" {
			t.Fatalf("%s audit rows: %+v", name, rows)
		}
		one, err := st.RecentAudit(ctx, 1)
		if err != nil || len(one) != 1 || one[0].Action != "mark_all_read" {
			t.Fatalf("%s newest: %+v %v", name, one, err)
		}
	}
}

func TestClosedSQLiteStore(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "s.sqlite")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := st.AppendAudit(context.Background(), AuditEntry{Action: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("AppendAudit after close: %v", err)
	}
	if _, _, err := st.GetSeen(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetSeen after close: %v", err)
	}
}

func TestClosedFileStore(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()
	if err := st.AppendAudit(context.Background(), AuditEntry{Action: "x"}); err != ErrClosed {
		t.Fatalf("AppendAudit after close: %v", err)
	}
	if err := st.PutSeen(context.Background(), "k", time.Now()); err != ErrClosed {
		t.Fatalf("PutSeen after close: %v", err)
	}
}
