// Package extract resolves episode pages into playable renditions by
// running the embed/ajax handshake: locate the embedded player, pull the
// rotating keys out of its page, exchange an encrypted session id with the
// backend and decrypt the source list it returns.
package extract

import (
	"context"
	"errors"
	"fmt"

	"animewatch/internal/media"
)

// Resolver turns an episode page URL into the renditions the backend offers.
type Resolver interface {
	Resolve(ctx context.Context, episodeURL string) ([]media.Rendition, error)
}

// Fetcher is the page-loading capability the handshake depends on.
// *httputil.Fetcher satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Post(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

var (
	// ErrElementNotFound means the page lacks the markup the protocol relies on.
	ErrElementNotFound = errors.New("element not found")
	// ErrKeyNotFound means the embed page no longer carries the three keys.
	ErrKeyNotFound = errors.New("encryption keys not found")
	// ErrUpstreamRequest marks a non-2xx answer from a site endpoint.
	ErrUpstreamRequest = errors.New("upstream request failed")
	// ErrMalformedPayload means a decrypted payload did not have the expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNoRenditions means the backend returned an empty source list.
	ErrNoRenditions = errors.New("no renditions returned")
)

// UpstreamError carries the HTTP status of a rejected request.
type UpstreamError struct {
	URL    string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request to %s failed with status %d", e.URL, e.Status)
}

// Is lets errors.Is(err, ErrUpstreamRequest) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRequest
}
