package generation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	fileNamePrefix = "boongle-image"
	slugWords      = 5
	slugMaxLen     = 50
	defaultExt     = "jpeg"
)

var slugUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Slug condenses the first words of prompt into a file-name-safe fragment.
func Slug(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > slugWords {
		words = words[:slugWords]
	}
	slug := strings.ToLower(slugUnsafe.ReplaceAllString(strings.Join(words, "-"), "_"))
	if len(slug) > slugMaxLen {
		slug = slug[:slugMaxLen]
	}
	return slug
}

// Extension returns the media subtype of mediaType, or jpeg when there is none.
func Extension(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	_, sub, ok := strings.Cut(strings.TrimSpace(mediaType), "/")
	sub = strings.ToLower(strings.TrimSpace(sub))
	if !ok || sub == "" {
		return defaultExt
	}
	return sub
}

// FileName builds the download name of the index-th artifact of a request
// that asked for count variants at createdAt.
func FileName(prompt string, createdAt time.Time, index, count int, mediaType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%s-%d", fileNamePrefix, Slug(prompt), createdAt.UnixMilli())
	if count > 1 {
		fmt.Fprintf(&b, "-%d", index+1)
	}
	b.WriteByte('.')
	b.WriteString(Extension(mediaType))
	return b.String()
}
