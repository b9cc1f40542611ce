package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// bagFingerprintExclusions are left out of entity bag fingerprints. A re-embedded document
// with the same facts is still the same delivery.
var bagFingerprintExclusions = map[string]bool{
	"embedding": true,
}

// BagFingerprint returns a deterministic hash of an entity bag's facts. Two deliveries of the
// same extraction hash identically regardless of map ordering.
func BagFingerprint(bag *models.EntityBag) string {
	if bag == nil {
		return ""
	}
	fp, err := Fingerprint(bag, bagFingerprintExclusions)
	if err != nil {
		return ""
	}
	return fp
}

// Fingerprint creates a SHA-256 fingerprint of v's canonical JSON. excludeFields holds
// dot-notation paths ("embedding", "financial.bail") to leave out.
func Fingerprint(v any, excludeFields map[string]bool) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}

	var b strings.Builder
	canonicalize(&b, generic, excludeFields, "")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:]), nil
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// canonicalize writes a deterministic rendering of data with map keys sorted
func canonicalize(b *strings.Builder, data any, excludeFields map[string]bool, currentPath string) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		first := true
		for _, k := range keys {
			fieldPath := k
			if currentPath != "" {
				fieldPath = currentPath + "." + k
			}
			if shouldExcludeField(fieldPath, excludeFields) {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			canonicalize(b, v[k], excludeFields, fieldPath)
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			// array elements share the parent path
			canonicalize(b, item, excludeFields, currentPath)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

// shouldExcludeField matches exact paths and children of excluded objects
func shouldExcludeField(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}
	if excludeFields[fieldPath] {
		return true
	}
	for excluded := range excludeFields {
		if strings.HasPrefix(fieldPath, excluded+".") {
			return true
		}
	}
	return false
}
