package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// KeyLength is the number of hex characters in a cache key.
const KeyLength = 16

// Key fingerprints (prompt, provider, params) into a 16-hex-character key.
//
// encoding/json writes map keys in sorted order, so params that differ only
// in key order produce the same key. Params that cannot be serialized fall
// back to a hash of prompt and provider alone.
func Key(prompt, provider string, params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		return shortHash(prompt + provider)
	}
	return shortHash("prompt:" + prompt + "|provider:" + provider + "|params:" + string(canonical))
}

// ValidKey reports whether s has the shape of a key produced by Key.
func ValidKey(s string) bool {
	if len(s) != KeyLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:KeyLength]
}
