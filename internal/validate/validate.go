package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// The four recognized link shapes, anchored at the start of the input.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/v/[\w-]+`),
}

// IsSupportedLink reports whether text looks like a downloadable video link.
func IsSupportedLink(text string) bool {
	for _, p := range linkPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// VideoID extracts the video identifier from a supported link.
func VideoID(link string) (string, bool) {
	raw := link
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		return id, id != ""
	case "youtube.com":
		switch {
		case u.Path == "/watch":
			id := u.Query().Get("v")
			return id, id != ""
		case strings.HasPrefix(u.Path, "/embed/"):
			id := strings.TrimPrefix(u.Path, "/embed/")
			return id, id != ""
		case strings.HasPrefix(u.Path, "/v/"):
			id := strings.TrimPrefix(u.Path, "/v/")
			return id, id != ""
		}
	}
	return "", false
}

// FormatDuration renders a duration in seconds as MM:SS. Minutes are not folded
// into hours, so long videos render as e.g. 95:30.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count using binary (1024) unit steps.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, sizeUnits[unit])
}

const maxFilenameLen = 100

// SanitizeFilename strips characters that are unsafe for storage keys and
// truncates overly long names. Truncation counts runes so a multi-byte title
// is never cut mid-character.
func SanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		return r
	}, name)

	if runes := []rune(sanitized); len(runes) > maxFilenameLen {
		sanitized = string(runes[:maxFilenameLen])
	}
	return sanitized
}
