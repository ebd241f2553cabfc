package config

import (
	"encoding/json"
	"hash/fnv"
)

// fingerprint identifies a config's content; 0 means unknown. Secrets are
// part of it so a token rotation is republished.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	h := fnv.New64a()
	if err := json.NewEncoder(h).Encode(cfg); err != nil {
		return 0
	}
	return h.Sum64()
}
