package plugin

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
)

// configHash fingerprints a plugin config block. Equivalent JSON (key
// order, whitespace) hashes the same; an empty block hashes to 0.
func configHash(raw json.RawMessage) uint64 {
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0
	}
	canon := []byte(raw)
	var v any
	if json.Unmarshal(raw, &v) == nil {
		if b, err := json.Marshal(v); err == nil {
			canon = b
		}
	}
	h := fnv.New64a()
	_, _ = h.Write(canon)
	return h.Sum64()
}
