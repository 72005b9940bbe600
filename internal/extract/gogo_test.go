package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"animewatch/internal/codec"
	"animewatch/internal/httputil"
	"animewatch/internal/media"
)

const (
	primaryKey   = "37911490979715163134003223491201"
	iv           = "3134003223491201"
	secondaryKey = "54674138327930866480207815084989"
	sessionID    = "MTI3NzQ5"
)

func mustEncrypt(t *testing.T, plaintext, key string) string {
	t.Helper()
	out, err := codec.Encrypt(plaintext, []byte(key), []byte(iv))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	return string(out)
}

func embedPage(t *testing.T, blob string) string {
	return fmt.Sprintf(`<html><body class="container-%s">
<div class="wrapper container-%s"><div class="videocontent-%s"></div></div>
<script type="text/JavaScript" src="/js/jquery.js" data-name="episode" data-value="%s"></script>
</body></html>`, primaryKey, iv, secondaryKey, blob)
}

type site struct {
	srv         *httptest.Server
	ajaxStatus  int
	payload     string
	ajaxCalls   int
	lastReferer string
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{ajaxStatus: http.StatusOK}
	mux := http.NewServeMux()

	mux.HandleFunc("/example-episode-5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><div class="anime_muti_link"><ul>
<li class="anime"><a href="#" rel="1" class="active" data-video="%s/streaming.php?id=%s&title=Example+Episode+5">Gogo</a></li>
<li class="vidcdn"><a href="#" rel="100" data-video="https://other.example/e/1">Other</a></li>
</ul></div></html>`, s.srv.URL, sessionID)
	})

	mux.HandleFunc("/streaming.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, embedPage(t, mustEncrypt(t, "title=Example+Episode+5&typesub=SUB", primaryKey)))
	})

	mux.HandleFunc("/encrypt-ajax.php", func(w http.ResponseWriter, r *http.Request) {
		s.ajaxCalls++
		s.lastReferer = r.Header.Get("Referer")
		if r.Method != http.MethodPost || r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		q := r.URL.Query()
		if q.Get("alias") != sessionID || q.Get("typesub") != "SUB" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, err := codec.Decrypt([]byte(q.Get("id")), []byte(primaryKey), []byte(iv))
		if err != nil || string(id) != sessionID {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if s.ajaxStatus != http.StatusOK {
			w.WriteHeader(s.ajaxStatus)
			return
		}
		fmt.Fprintf(w, `{"data":"%s"}`, mustEncrypt(t, s.payload, secondaryKey))
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) resolver() *Gogo {
	return NewGogo(httputil.NewFetcher(s.srv.Client()), nil)
}

func TestResolve(t *testing.T) {
	s := newSite(t)
	s.payload = `{"source":[{"file":"https://cdn.example/ep5.m3u8","label":"hls P","type":"hls"}],` +
		`"source_bk":[{"file":"https://cdn.example/ep5.mp4","label":"720 P","type":"mp4"}],"track":[]}`

	got, err := s.resolver().Resolve(context.Background(), s.srv.URL+"/example-episode-5")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	want := []media.Rendition{
		{FileURL: "https://cdn.example/ep5.m3u8", Transport: media.HLS, Label: "hls P"},
		{FileURL: "https://cdn.example/ep5.mp4", Transport: media.MP4, Label: "720 P"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d renditions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rendition %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !strings.HasPrefix(s.lastReferer, s.srv.URL+"/streaming.php?id=") {
		t.Errorf("referer = %q, want the embed reference", s.lastReferer)
	}
}

func TestResolveUpstreamFailure(t *testing.T) {
	s := newSite(t)
	s.ajaxStatus = http.StatusForbidden

	_, err := s.resolver().Resolve(context.Background(), s.srv.URL+"/example-episode-5")
	if !errors.Is(err, ErrUpstreamRequest) {
		t.Fatalf("expected ErrUpstreamRequest, got %v", err)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusForbidden {
		t.Errorf("expected UpstreamError{403}, got %v", err)
	}
	if s.ajaxCalls != 1 {
		t.Errorf("ajax calls = %d, want 1 (no retry on status)", s.ajaxCalls)
	}
}

func TestResolveEmptySourceList(t *testing.T) {
	s := newSite(t)
	s.payload = `{"source":[],"source_bk":[]}`

	_, err := s.resolver().Resolve(context.Background(), s.srv.URL+"/example-episode-5")
	if !errors.Is(err, ErrNoRenditions) {
		t.Fatalf("expected ErrNoRenditions, got %v", err)
	}
}

func TestResolveMissingEpisodePage(t *testing.T) {
	s := newSite(t)

	_, err := s.resolver().Resolve(context.Background(), s.srv.URL+"/missing-episode-1")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusNotFound {
		t.Fatalf("expected UpstreamError{404}, got %v", err)
	}
}

func TestDecodeSourcesRejectsGarbage(t *testing.T) {
	keys := KeySet{PrimaryKey: []byte(primaryKey), IV: []byte(iv), SecondaryKey: []byte(secondaryKey)}

	tests := []struct {
		name string
		body string
	}{
		{"no data field", `{"status":"ok"}`},
		{"data not a string", `{"data":12}`},
		{"encrypted with wrong key", fmt.Sprintf(`{"data":"%s"}`, mustEncrypt(t, `{"source":[]}`, primaryKey))},
		{"not base64", `{"data":"%%%"}`},
		{"source not a list", fmt.Sprintf(`{"data":"%s"}`, mustEncrypt(t, `{"source":{"file":"x"}}`, secondaryKey))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSources([]byte(tt.body), keys)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestExtractKeys(t *testing.T) {
	page := []byte(embedPage(t, "x"))
	keys, err := ExtractKeys(page)
	if err != nil {
		t.Fatalf("ExtractKeys() error: %v", err)
	}
	if string(keys.PrimaryKey) != primaryKey || string(keys.IV) != iv || string(keys.SecondaryKey) != secondaryKey {
		t.Errorf("ExtractKeys() = %s/%s/%s", keys.PrimaryKey, keys.IV, keys.SecondaryKey)
	}

	_, err = ExtractKeys([]byte(`<body class="container-1"><div class="videocontent-2"></div></body>`))
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound with two markers, got %v", err)
	}
}

func TestEmbedReference(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{
			name: "protocol relative gets https",
			html: `<a class="active" rel="1" data-video="//embtaku.pro/streaming.php?id=MTI3&title=x">x</a>`,
			want: "https://embtaku.pro/streaming.php?id=MTI3&title=x",
		},
		{
			name: "absolute kept",
			html: `<a class="active" rel="1" data-video="https://embtaku.pro/streaming.php?id=1">x</a>`,
			want: "https://embtaku.pro/streaming.php?id=1",
		},
		{
			name:    "inactive only",
			html:    `<a rel="1" data-video="//embtaku.pro/streaming.php?id=1">x</a>`,
			wantErr: true,
		},
		{
			name:    "missing attribute",
			html:    `<a class="active" rel="1">x</a>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatal(err)
			}
			got, err := EmbedReference(doc)
			if tt.wantErr {
				if !errors.Is(err, ErrElementNotFound) {
					t.Errorf("expected ErrElementNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EmbedReference() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EmbedReference() = %q, want %q", got, tt.want)
			}
		})
	}
}
