// Package history persists which episodes of each title have been watched.
// The store is a JSON array on disk, rewritten atomically (temp file and
// rename) after every mutation while holding an exclusive file lock.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

var (
	// ErrCorrupt is logged when the history file cannot be decoded and is reset.
	ErrCorrupt = errors.New("watch history file is corrupt")
	// ErrInvalidEpisode rejects episode numbers below 1.
	ErrInvalidEpisode = errors.New("episode numbers start at 1")
)

// Record is the persisted watch state of one title.
type Record struct {
	Title   string `json:"title"`
	Watched []int  `json:"watched_episodes"`
}

// Has reports whether episode has been watched.
func (r Record) Has(episode int) bool {
	_, found := slices.BinarySearch(r.Watched, episode)
	return found
}

// Store is a file-backed watch history.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// Open prepares the store at path, creating the file with an empty array if
// it does not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking history: %w", err)
	}
	defer s.lock.Unlock()

	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Unwatched returns the episodes in [start, end] not yet watched, ascending.
// An unknown title is recorded with an empty watched set and yields an empty
// result, meaning nothing is known about it yet.
func (s *Store) Unwatched(title string, start, end int) ([]int, error) {
	var result []int
	err := s.update(func(records []Record) ([]Record, bool, error) {
		i := indexOf(records, title)
		if i < 0 {
			s.logger.Info("tracking new title", slog.String("title", title))
			return append(records, Record{Title: title, Watched: []int{}}), true, nil
		}
		for ep := start; ep <= end; ep++ {
			if !records[i].Has(ep) {
				result = append(result, ep)
			}
		}
		return records, false, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []int{}
	}
	return result, nil
}

// MarkWatched records episode as watched for title. Marking an episode twice
// is a no-op.
func (s *Store) MarkWatched(title string, episode int) error {
	if episode < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidEpisode, episode)
	}
	return s.update(func(records []Record) ([]Record, bool, error) {
		i := indexOf(records, title)
		if i < 0 {
			records = append(records, Record{Title: title, Watched: []int{}})
			i = len(records) - 1
		}
		pos, found := slices.BinarySearch(records[i].Watched, episode)
		if found {
			return records, false, nil
		}
		records[i].Watched = slices.Insert(records[i].Watched, pos, episode)
		return records, true, nil
	})
}

// Records returns every known title in file order. The exclusive lock is
// taken because load may rewrite a missing or corrupt file.
func (s *Store) Records() ([]Record, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking history: %w", err)
	}
	defer s.lock.Unlock()
	return s.load()
}

// Record returns the record of title, if any.
func (s *Store) Record(title string) (Record, bool, error) {
	records, err := s.Records()
	if err != nil {
		return Record{}, false, err
	}
	if i := indexOf(records, title); i >= 0 {
		return records[i], true, nil
	}
	return Record{}, false, nil
}

// update runs fn on the current records under the exclusive lock and writes
// the result back when fn reports a change.
func (s *Store) update(fn func([]Record) ([]Record, bool, error)) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking history: %w", err)
	}
	defer s.lock.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records, changed, err := fn(records)
	if err != nil || !changed {
		return err
	}
	return s.write(records)
}

// load reads the file. A missing file is created and a malformed one is
// reset to an empty array; both yield no records.
func (s *Store) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, s.write(nil)
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var raw []Record
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("resetting watch history",
			slog.String("path", s.path),
			slog.Any("error", fmt.Errorf("%w: %v", ErrCorrupt, err)))
		return nil, s.write(nil)
	}
	return normalize(raw), nil
}

// normalize merges duplicate titles and sorts, dedupes and filters episode
// numbers so every record satisfies the store invariants.
func normalize(raw []Record) []Record {
	var records []Record
	for _, r := range raw {
		i := indexOf(records, r.Title)
		if i < 0 {
			records = append(records, Record{Title: r.Title, Watched: []int{}})
			i = len(records) - 1
		}
		for _, ep := range r.Watched {
			if ep >= 1 {
				records[i].Watched = append(records[i].Watched, ep)
			}
		}
	}
	for i := range records {
		slices.Sort(records[i].Watched)
		records[i].Watched = slices.Compact(records[i].Watched)
	}
	return records
}

// write replaces the history file atomically.
func (s *Store) write(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "watched-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing history: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming history file: %w", err)
	}

	return nil
}

func indexOf(records []Record, title string) int {
	return slices.IndexFunc(records, func(r Record) bool { return r.Title == title })
}

// FormatEpisodes collapses runs for display: [1 2 3 5 7 8] -> "1-3, 5, 7-8".
func FormatEpisodes(eps []int) string {
	var parts []string
	for i := 0; i < len(eps); {
		j := i
		for j+1 < len(eps) && eps[j+1] == eps[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(eps[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", eps[i], eps[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
