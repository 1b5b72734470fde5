package announce

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	enchorBase = "https://www.enchor.us/"
	bridgeBase = "chbridge://search"
)

var colorTagRe = regexp.MustCompile(`</?color[^>]*>`)

func stripColorTags(s string) string {
	return colorTagRe.ReplaceAllString(s, "")
}

// EnchorURL builds the chart-search URL for the public chart index.
// The name and artist are lowercased for the web search form; absent
// fields are omitted. Returns "" when there is nothing to search by.
func EnchorURL(title, artist, charter string) string {
	if title == "" && artist == "" {
		return ""
	}
	params := url.Values{}
	if title != "" {
		params.Set("name", strings.ToLower(title))
	}
	if artist != "" {
		params.Set("artist", strings.ToLower(artist))
	}
	if charter = stripColorTags(charter); charter != "" {
		params.Set("charter", charter)
	}
	return enchorBase + "?" + params.Encode()
}

// BridgeURL builds the desktop-app deep link. Case is preserved.
func BridgeURL(title, artist, charter string) string {
	if title == "" && artist == "" {
		return ""
	}
	params := url.Values{}
	if title != "" {
		params.Set("name", title)
	}
	if artist != "" {
		params.Set("artist", artist)
	}
	if charter = stripColorTags(charter); charter != "" {
		params.Set("charter", charter)
	}
	return bridgeBase + "?" + params.Encode()
}
