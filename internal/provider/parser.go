package provider

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"animewatch/internal/media"
)

// parseEpisodeRange reads the ep_start/ep_end attributes of the episode page
// tabs. The site counts ep_start from zero, so the first episode is the
// smallest ep_start plus one.
func parseEpisodeRange(doc *goquery.Document) (media.EpisodeRange, error) {
	minStart, maxEnd := math.MaxInt, math.MinInt
	found := false

	doc.Find("#episode_page li a").Each(func(_ int, s *goquery.Selection) {
		start, err1 := strconv.Atoi(strings.TrimSpace(s.AttrOr("ep_start", "")))
		end, err2 := strconv.Atoi(strings.TrimSpace(s.AttrOr("ep_end", "")))
		if err1 != nil || err2 != nil {
			return
		}
		found = true
		minStart = min(minStart, start)
		maxEnd = max(maxEnd, end)
	})

	if !found {
		return media.EpisodeRange{}, ErrNoEpisodes
	}
	r := media.EpisodeRange{Start: minStart + 1, End: maxEnd}
	if r.Start > r.End {
		return media.EpisodeRange{}, ErrNoEpisodes
	}
	return r, nil
}

// parseListing extracts titles and links from an A-Z listing page.
// Uses DOM parsing so titles are plain text, never markup.
func parseListing(doc *goquery.Document) []media.Title {
	var titles []media.Title
	seen := make(map[string]bool)

	doc.Find(".anime_list_body .listing li a").Each(func(_ int, s *goquery.Selection) {
		name := strings.Join(strings.Fields(s.Text()), " ")
		href, exists := s.Attr("href")
		if name == "" || !exists || seen[name] {
			return
		}
		seen[name] = true
		titles = append(titles, media.Title{Name: name, Link: strings.TrimSpace(href)})
	})

	return titles
}
