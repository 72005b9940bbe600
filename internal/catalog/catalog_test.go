package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"animewatch/internal/media"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "animewatch", "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	titles := []media.Title{
		{Name: "Boruto: Naruto Next Generations", Link: "https://gogoanime3.net/category/boruto"},
		{Name: "Naruto Shippuden", Link: "https://gogoanime3.net/category/naruto-shippuden"},
		{Name: "Naruto", Link: "https://gogoanime3.net/category/naruto"},
		{Name: "One Piece", Link: "https://gogoanime3.net/category/one-piece"},
		{Name: "100%_Pascal", Link: "https://gogoanime3.net/category/100-pascal"},
	}
	n, err := s.Upsert(context.Background(), titles)
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if n != len(titles) {
		t.Fatalf("Upsert() wrote %d, want %d", n, len(titles))
	}
}

func names(titles []media.Title) []string {
	out := make([]string, len(titles))
	for i, t := range titles {
		out[i] = t.Name
	}
	return out
}

func TestSearchPrefixFirst(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "naruto")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	want := []string{"Naruto", "Naruto Shippuden", "Boruto: Naruto Next Generations"}
	if len(got) != len(want) {
		t.Fatalf("Search() = %v, want %v", names(got), want)
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("result[%d] = %q, want %q", i, got[i].Name, want[i])
		}
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "%_")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "100%_Pascal" {
		t.Errorf("Search(%%_) = %v, want only the literal match", names(got))
	}
}

func TestSearchFuzzyFallback(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "onpce")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Name != "One Piece" {
		t.Errorf("fuzzy Search() = %v, want One Piece first", names(got))
	}
}

func TestSearchNoMatch(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), "zzzzqqq")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", names(got))
	}
	if got, _ := s.Search(context.Background(), "   "); got != nil {
		t.Errorf("blank query returned %v", names(got))
	}
}

func TestUpsertCollapsesDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, []media.Title{
		{Name: "Naruto", Link: "https://a.example/naruto"},
		{Name: "Naruto", Link: "https://b.example/naruto"},
		{Name: "  ", Link: "https://b.example/blank"},
	})

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	title, ok, err := s.Lookup(ctx, "Naruto")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	if title.Link != "https://b.example/naruto" {
		t.Errorf("link = %q, want the latest", title.Link)
	}

	if _, ok, _ := s.Lookup(ctx, "Missing"); ok {
		t.Error("Lookup(Missing) found a title")
	}
}

func TestReopenKeepsTitles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, s)
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	n, _ := s.Count(context.Background())
	if n != 5 {
		t.Errorf("Count() after reopen = %d, want 5", n)
	}
}
