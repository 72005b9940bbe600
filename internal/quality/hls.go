package quality

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"animewatch/internal/media"
)

// Getter fetches a playlist body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Expander turns an HLS master playlist into one rendition per variant.
type Expander struct {
	getter Getter
}

// NewExpander creates an Expander that loads playlists with getter.
func NewExpander(getter Getter) *Expander {
	return &Expander{getter: getter}
}

// Expand returns the variants of r's master playlist in ascending bandwidth
// order, labelled by vertical resolution. A media playlist or an MP4
// rendition is returned unchanged.
func (e *Expander) Expand(ctx context.Context, r media.Rendition) ([]media.Rendition, error) {
	if r.Transport != media.HLS {
		return []media.Rendition{r}, nil
	}

	body, err := e.getter.Get(ctx, r.FileURL)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist: %w", err)
	}
	return parseMaster(body, r)
}

func parseMaster(body []byte, r media.Rendition) ([]media.Rendition, error) {
	base, err := url.Parse(r.FileURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist url: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("failed parsing m3u8: %w", err)
	}
	if listType != m3u8.MASTER {
		return []media.Rendition{r}, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	variants := make([]*m3u8.Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" || v.Iframe {
			continue
		}
		variants = append(variants, v)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist has no variants")
	}
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth < variants[j].Bandwidth
	})

	out := make([]media.Rendition, 0, len(variants))
	for _, v := range variants {
		ref, err := url.Parse(v.URI)
		if err != nil {
			continue
		}
		out = append(out, media.Rendition{
			FileURL:   base.ResolveReference(ref).String(),
			Transport: media.HLS,
			Label:     variantLabel(v),
		})
	}
	return out, nil
}

// variantLabel returns the height of "1280x720" style resolutions, falling
// back to the variant name.
func variantLabel(v *m3u8.Variant) string {
	if _, h, ok := strings.Cut(v.Resolution, "x"); ok {
		if _, err := strconv.Atoi(h); err == nil {
			return h
		}
	}
	return v.Name
}
