package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"animewatch/internal/codec"
	"animewatch/internal/httputil"
	"animewatch/internal/media"
)

const ajaxPath = "/encrypt-ajax.php?"

// Gogo resolves episodes served through the encrypt-ajax embed player.
type Gogo struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewGogo creates a resolver using fetcher for every request.
func NewGogo(fetcher Fetcher, logger *slog.Logger) *Gogo {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gogo{fetcher: fetcher, logger: logger}
}

// Resolve runs the full handshake for one episode page. The returned list
// keeps the backend's order and is never empty on success.
func (g *Gogo) Resolve(ctx context.Context, episodeURL string) ([]media.Rendition, error) {
	// Step 1: locate the embedded player
	episodeDoc, err := g.document(ctx, episodeURL)
	if err != nil {
		return nil, fmt.Errorf("fetching episode page: %w", err)
	}
	embedURL, err := EmbedReference(episodeDoc)
	if err != nil {
		return nil, fmt.Errorf("resolving embed reference: %w", err)
	}
	g.logger.Debug("embed reference", slog.String("url", embedURL))

	// Step 2: keys live in the embed page, fetched once for keys and data blob
	embedPage, err := g.get(ctx, embedURL)
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}
	keys, err := ExtractKeys(embedPage)
	if err != nil {
		return nil, err
	}

	// Step 3 and 4: endpoint and session id come from the embed reference
	embed, err := url.Parse(embedURL)
	if err != nil {
		return nil, fmt.Errorf("parsing embed reference: %w", err)
	}
	endpoint := embed.Scheme + "://" + embed.Host + ajaxPath
	sessionID := embed.Query().Get("id")
	if sessionID == "" {
		return nil, fmt.Errorf("%w: id parameter in %s", ErrElementNotFound, embedURL)
	}

	// Step 5: decrypt the page's own query blob
	embedDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(embedPage))
	if err != nil {
		return nil, fmt.Errorf("parsing embed page: %w", err)
	}
	blob, err := episodeData(embedDoc)
	if err != nil {
		return nil, err
	}
	decrypted, err := codec.Decrypt([]byte(blob), keys.PrimaryKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: episode data: %v", ErrMalformedPayload, err)
	}
	params, err := url.ParseQuery(string(decrypted))
	if err != nil {
		return nil, fmt.Errorf("%w: episode data query: %v", ErrMalformedPayload, err)
	}

	// Step 6 and 7: the session id travels encrypted with the same key pair
	encryptedID, err := codec.Encrypt(sessionID, keys.PrimaryKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("encrypting session id: %w", err)
	}
	params.Set("id", string(encryptedID))

	// Step 8 and 9
	ajaxURL := endpoint + params.Encode() + "&alias=" + sessionID
	body, err := g.fetcher.Post(ctx, ajaxURL, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          embedURL,
	})
	if err != nil {
		return nil, fmt.Errorf("exchanging session token: %w", upstream(err))
	}

	// Step 10
	renditions, err := decodeSources(body, keys)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("resolved renditions",
		slog.String("episode", episodeURL),
		slog.Int("count", len(renditions)))
	return renditions, nil
}

// decodeSources decrypts the response envelope and validates its shape.
func decodeSources(body []byte, keys KeySet) ([]media.Rendition, error) {
	data := gjson.GetBytes(body, "data")
	if data.Type != gjson.String || data.String() == "" {
		return nil, fmt.Errorf("%w: response has no data field", ErrMalformedPayload)
	}

	plain, err := codec.Decrypt([]byte(data.String()), keys.SecondaryKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: response data: %v", ErrMalformedPayload, err)
	}
	if !gjson.ValidBytes(plain) {
		return nil, fmt.Errorf("%w: decrypted response is not JSON", ErrMalformedPayload)
	}

	// source holds the primary list; source_bk the backup servers.
	var renditions []media.Rendition
	for _, path := range []string{"source", "source_bk"} {
		list := gjson.GetBytes(plain, path)
		if !list.Exists() || list.Type == gjson.Null {
			continue
		}
		if !list.IsArray() {
			return nil, fmt.Errorf("%w: %s is not a list", ErrMalformedPayload, path)
		}
		list.ForEach(func(_, entry gjson.Result) bool {
			file := strings.TrimSpace(entry.Get("file").String())
			if file == "" {
				return true
			}
			renditions = append(renditions, media.Rendition{
				FileURL:   file,
				Transport: media.ClassifyTransport(file, entry.Get("type").String()),
				Label:     strings.TrimSpace(entry.Get("label").String()),
			})
			return true
		})
	}

	if len(renditions) == 0 {
		return nil, ErrNoRenditions
	}
	return renditions, nil
}

func (g *Gogo) get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := g.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, upstream(err)
	}
	return body, nil
}

func (g *Gogo) document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := g.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// upstream converts a status error from the HTTP layer into an UpstreamError.
func upstream(err error) error {
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return &UpstreamError{URL: se.URL, Status: se.Status}
	}
	return err
}
