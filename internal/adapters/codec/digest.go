package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// digestLen is the number of hex characters logged for a blob digest.
const digestLen = 12

// Digest returns a short content digest of a blob, used to correlate
// the model a worker fetched with the model the learner published.
func Digest(blob []byte) string {
	sum := blake3.Sum256(blob)
	return hex.EncodeToString(sum[:])[:digestLen]
}
