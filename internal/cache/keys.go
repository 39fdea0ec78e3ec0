package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ValidationKey hashes the input text so identical submissions reuse the
// cached validation result.
func ValidationKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("validation:%s", hex.EncodeToString(sum[:8]))
}
