package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the SHA-256 hex digest of the snapshot's canonical
// JSON form. Tags and languages are treated as sets; author order counts.
func Fingerprint(s Snapshot) string {
	canon := s
	canon.Tags = sortedSet(s.Tags)
	canon.Languages = sortedSet(s.Languages)
	if canon.Authors == nil {
		canon.Authors = []string{}
	}
	if canon.Identifiers == nil {
		canon.Identifiers = map[string]string{}
	}
	data, err := canonicalJSON(canon)
	if err != nil {
		// Snapshot holds only strings, bools, slices and string maps.
		panic("metadata: encode snapshot: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON encodes v with every object's keys in sorted order.
// encoding/json already sorts map keys, so a round trip through a generic
// value is enough to sort struct fields too.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
