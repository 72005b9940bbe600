// Package provider knows the page layout of the streaming site: where a
// title's episode range lives, how episode URLs are formed and how the A-Z
// title listing is paginated.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"animewatch/internal/httputil"
	"animewatch/internal/media"
)

// ErrNoEpisodes is returned when a title page lists no episodes.
var ErrNoEpisodes = errors.New("no episodes listed")

// DocumentFetcher loads and parses an HTML page.
type DocumentFetcher interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// Site is the page layout of one site host.
type Site struct {
	base    string // e.g., "gogoanime3.net"
	fetcher DocumentFetcher
	logger  *slog.Logger
}

// NewSite creates a Site for base, which may be a bare host or a full URL.
func NewSite(base string, fetcher DocumentFetcher, logger *slog.Logger) *Site {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Site{base: strings.TrimSuffix(base, "/"), fetcher: fetcher, logger: logger}
}

// BaseURL returns the site root without a trailing slash.
func (s *Site) BaseURL() string {
	if strings.HasPrefix(s.base, "http://") || strings.HasPrefix(s.base, "https://") {
		return s.base
	}
	return "https://" + s.base
}

var slugStrip = regexp.MustCompile(`[:;\\\[\]]`)

// Slugify turns a display title into its URL form:
// "Naruto Shippuden" -> "naruto-shippuden".
func Slugify(title string) string {
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	return slugStrip.ReplaceAllString(slug, "")
}

// EpisodeURL returns the page URL of episode n of title.
func (s *Site) EpisodeURL(title string, n int) string {
	return fmt.Sprintf("%s/%s-episode-%d", s.BaseURL(), url.PathEscape(Slugify(title)), n)
}

// TitleURL returns the absolute URL of a catalog title page.
func (s *Site) TitleURL(t media.Title) (string, error) {
	if t.Link == "" {
		return s.BaseURL() + "/category/" + url.PathEscape(Slugify(t.Name)), nil
	}
	return httputil.AbsoluteURL(s.BaseURL(), t.Link)
}

// ListingURL returns the URL of page n of the A-Z listing.
func (s *Site) ListingURL(page int) string {
	return fmt.Sprintf("%s/anime-list.html?page=%d", s.BaseURL(), page)
}

// EpisodeRange reads the first and last available episode from a title page.
func (s *Site) EpisodeRange(ctx context.Context, titleURL string) (media.EpisodeRange, error) {
	doc, err := s.fetcher.Document(ctx, titleURL)
	if err != nil {
		return media.EpisodeRange{}, fmt.Errorf("fetching title page: %w", err)
	}
	r, err := parseEpisodeRange(doc)
	if err != nil {
		return media.EpisodeRange{}, fmt.Errorf("%s: %w", titleURL, err)
	}
	s.logger.Debug("episode range",
		slog.String("url", titleURL),
		slog.Int("start", r.Start),
		slog.Int("end", r.End))
	return r, nil
}

// Listing returns the titles on page n of the A-Z listing.
func (s *Site) Listing(ctx context.Context, page int) ([]media.Title, error) {
	doc, err := s.fetcher.Document(ctx, s.ListingURL(page))
	if err != nil {
		return nil, fmt.Errorf("fetching listing page %d: %w", page, err)
	}

	titles := parseListing(doc)
	for i := range titles {
		link, err := httputil.AbsoluteURL(s.BaseURL(), titles[i].Link)
		if err != nil {
			s.logger.Debug("skipping listing link", slog.String("link", titles[i].Link), slog.Any("error", err))
			continue
		}
		titles[i].Link = link
	}
	return titles, nil
}
