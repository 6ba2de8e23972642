package guard

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short, non-reversible tag for a cookie value so logs
// can correlate requests from one session without recording the credential.
func Fingerprint(cookie string) string {
	if cookie == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(cookie))
	return hex.EncodeToString(sum[:6])
}
