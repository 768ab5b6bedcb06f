package core

import (
	"encoding/json"
	"hash/fnv"
)

// hashBytes is a stable FNV-1a digest; empty input maps to 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// canonicalHashJSON digests raw after a decode/re-encode round trip, so
// whitespace and key-order differences don't change the hash. Input that
// isn't valid JSON is hashed byte-for-byte instead.
func canonicalHashJSON(raw json.RawMessage) uint64 {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return hashBytes(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return hashBytes(raw)
	}
	return hashBytes(b)
}
