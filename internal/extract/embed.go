package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// activePlayerSelector matches the anchor of the currently selected server.
const activePlayerSelector = `a.active[rel="1"]`

// episodeDataSelector matches the script tag carrying the encrypted query blob.
const episodeDataSelector = `script[data-name="episode"]`

// EmbedReference finds the active player anchor in an episode page and
// returns its data-video value as an absolute URL.
func EmbedReference(doc *goquery.Document) (string, error) {
	link := doc.Find(activePlayerSelector).First()
	if link.Length() == 0 {
		return "", fmt.Errorf("%w: active player link", ErrElementNotFound)
	}

	src := strings.TrimSpace(link.AttrOr("data-video", ""))
	if src == "" {
		return "", fmt.Errorf("%w: data-video attribute", ErrElementNotFound)
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing embed reference %q: %w", src, err)
	}
	if u.Scheme == "" {
		return "https:" + src, nil
	}
	return src, nil
}

// episodeData returns the encrypted data-value of the episode script tag.
func episodeData(doc *goquery.Document) (string, error) {
	val, ok := doc.Find(episodeDataSelector).First().Attr("data-value")
	if !ok || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("%w: episode data script", ErrElementNotFound)
	}
	return strings.TrimSpace(val), nil
}
