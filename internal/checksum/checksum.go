// Package checksum computes content digests used to detect divergent notes.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/notemirror/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Note digests the user-editable content of n. Identity, author and
// timestamps are excluded so two copies of the same edit compare equal.
func Note(n models.Note) string {
	h := sha256.New()
	parent := ""
	if n.ParentID != nil {
		parent = n.ParentID.String()
	}
	for _, field := range []string{n.Title, n.Body, parent, n.ColorValue(), n.TagValue()} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
