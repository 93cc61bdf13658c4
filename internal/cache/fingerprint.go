package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint is the deterministic cache key spec.md's Fingerprint data
// model names: a function of model identity, normalized input text, and
// an optional dimension override. Collisions across distinct embedding
// models are impossible by construction since the model id is hashed in.
type Fingerprint string

// NewFingerprint builds a Fingerprint from the embedding model identity,
// the exact text that will be sent to the embedder, and an optional
// dimension override (0 means "provider default").
func NewFingerprint(modelName, text string, dimension int) Fingerprint {
	h := sha256.New()
	_, _ = h.Write([]byte(modelName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(dimension)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.TrimSpace(text)))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
