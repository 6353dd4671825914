package kubetask

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SpecHash fingerprints a desired spec so an unchanged apply can be skipped.
func SpecHash(spec any) string {
	data, err := json.Marshal(spec)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func withAnnotation(in map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	out[key] = value
	return out
}

func mergeLabels(current, desired map[string]string) map[string]string {
	out := make(map[string]string, len(current)+len(desired))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range desired {
		out[k] = v
	}
	return out
}
