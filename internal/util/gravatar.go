package util

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// GravatarURL builds the avatar URI for an email address. Pure function:
// the same email and options always produce the same URI.
func GravatarURL(email string, size int, defaultStyle string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	hash := hex.EncodeToString(sum[:])
	if size <= 0 {
		size = 200
	}
	if defaultStyle == "" {
		defaultStyle = "retro"
	}
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=%s", hash, size, defaultStyle)
}
