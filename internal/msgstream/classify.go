package msgstream

import (
	"strings"

	"github.com/yarsha/chatsync/internal/store"
)

// Classify derives the message type from its attachments and content. Giphy
// links win over attachment sniffing, matching how the composer sends them.
func Classify(content string, multimedia []store.Multimedia) string {
	msgType := store.TypeText
	if len(multimedia) > 0 {
		msgType = store.TypeFile
		for _, m := range multimedia {
			if strings.HasPrefix(m.MimeType, "image/") {
				msgType = store.TypeImage
				break
			}
		}
		if msgType == store.TypeFile {
			for _, m := range multimedia {
				if strings.HasPrefix(m.MimeType, "video/") {
					msgType = store.TypeVideo
					break
				}
			}
		}
	}
	if isGiphyURL(content) {
		msgType = store.TypeGif
	}
	return msgType
}

func isGiphyURL(s string) bool {
	return strings.Contains(s, "giphy.com/media/") || strings.Contains(s, "media.giphy.com/media/")
}
