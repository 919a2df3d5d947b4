package note

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"
)

// IDPrefix namespaces note identities, keeping them recognizable next to
// other id kinds in logs and stores.
const IDPrefix = "note"

// ComputeID derives the content-addressed identity for an embedding.
//
// The embedding is serialized as big-endian IEEE-754 bits in vector order,
// hashed with SHA-256, and the first 12 bytes are base64url-encoded without
// padding. The same embedding always produces the same id, which is what
// makes re-ingestion of identical content collapse to a single note.
//
// Format: note:{base64url(sha256(embedding_bytes)[:12])}
//
// Example:
//
//	id := note.ComputeID([]float64{0.1, 0.2, 0.3})
//	// id = "note:tUqzYHmLa3sVZEXU"
func ComputeID(embedding []float64) string {
	buf := make([]byte, 8*len(embedding))
	for i, v := range embedding {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}

	hash := sha256.Sum256(buf)
	encoded := base64.RawURLEncoding.EncodeToString(hash[:12])
	return IDPrefix + ":" + encoded
}
