package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// IdempotencyKey derives the deterministic key the downstream boundary uses
// to suppress duplicate ingestion of the same logical item. With force the
// key is perturbed by a random nonce so a resubmission is accepted
func IdempotencyKey(sourceType, sourceID, contentHash string, force bool) string {
	h := sha256.New()
	h.Write([]byte(sourceType))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	key := hex.EncodeToString(h.Sum(nil))
	if force {
		key += "-" + uuid.NewString()
	}
	return key
}
