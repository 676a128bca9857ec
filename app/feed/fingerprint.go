package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the dedup identity of a candidate item from its url,
// title and content. The cleaned content is preferred; the raw content is the
// fallback. Trivial content edits therefore merge into the existing item
// rather than creating a new one.
func Fingerprint(url, title, content, rawContent string) string {
	body := content
	if body == "" {
		body = rawContent
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{url, title, body}, "|")))
	return hex.EncodeToString(sum[:])
}
