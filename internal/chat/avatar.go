package chat

import (
	"crypto/md5"
	"fmt"
	"strings"
)

const gravatarURL = "https://www.gravatar.com/avatar/%x?s=48&d=identicon"

// AvatarURL derives the avatar shown for a session. An explicit http(s) URL
// is kept as is, an email address maps to its Gravatar, and anything else
// falls back to an identicon seeded by the nickname.
func AvatarURL(source, nickname string) string {
	source = strings.TrimSpace(source)
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return source
	case strings.Contains(source, "@"):
		return fmt.Sprintf(gravatarURL, md5.Sum([]byte(lower)))
	case nickname != "":
		return fmt.Sprintf(gravatarURL, md5.Sum([]byte(nickname)))
	}
	return ""
}
