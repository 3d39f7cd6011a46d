package sticker

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Selector serves random stickers from the live table and reloads it from
// its source file on request. It is safe for concurrent use.
type Selector struct {
	path  string
	table atomic.Pointer[Table]

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a [Selector].
type Option func(*Selector)

// WithRandSource sets the source used for picks. The default is a randomly
// seeded PCG.
func WithRandSource(src rand.Source) Option {
	return func(s *Selector) {
		if src != nil {
			s.rnd = rand.New(src)
		}
	}
}

// WithTable installs t as the initial table instead of loading path.
func WithTable(t *Table) Option {
	return func(s *Selector) {
		if t != nil {
			s.table.Store(t)
		}
	}
}

// NewSelector returns a Selector backed by the table file at path and loads
// it. A missing file yields an empty table, so the bot runs text-only until
// the file appears and is reloaded; any other load error is returned.
// An empty path never touches the filesystem.
func NewSelector(path string, opts ...Option) (*Selector, error) {
	s := &Selector{
		path: path,
		rnd:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	if s.table.Load() != nil {
		return s, nil
	}
	s.table.Store(NewTable(nil))
	if path == "" {
		return s, nil
	}
	if _, err := s.Reload(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("sticker: table file not found, stickers disabled", "path", path)
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Pick returns a random sticker id for category. A missing or empty category
// falls back to [FallbackCategory]; if that is missing too, Pick returns "".
func (s *Selector) Pick(category string) string {
	t := s.table.Load()
	ids := t.IDs(category)
	if len(ids) == 0 {
		ids = t.IDs(FallbackCategory)
	}
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return ids[0]
	}
	s.mu.Lock()
	i := s.rnd.IntN(len(ids))
	s.mu.Unlock()
	return ids[i]
}

// Reload re-reads the table file and swaps it in, returning the number of
// categories now loaded. On failure the previous table stays live.
func (s *Selector) Reload() (int, error) {
	if s.path == "" {
		return 0, errors.New("sticker: no table file configured")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("sticker: open %s: %w", s.path, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return 0, err
	}
	s.table.Store(t)
	slog.Info("sticker: table loaded", "path", s.path, "categories", t.Len())
	return t.Len(), nil
}

// Replace parses data as a table, writes it to the table file when one is
// configured and makes it live. Invalid data changes nothing.
func (s *Selector) Replace(data []byte) (int, error) {
	t, err := Parse(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if s.path != "" {
		if err := writeFileAtomic(s.path, data); err != nil {
			return 0, fmt.Errorf("sticker: write %s: %w", s.path, err)
		}
	}
	s.table.Store(t)
	slog.Info("sticker: table replaced", "path", s.path, "categories", t.Len())
	return t.Len(), nil
}

// writeFileAtomic writes data next to path and renames it into place so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stickers-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Table returns the live table snapshot.
func (s *Selector) Table() *Table { return s.table.Load() }

// Len returns the number of categories in the live table.
func (s *Selector) Len() int { return s.table.Load().Len() }

// Path returns the table file path.
func (s *Selector) Path() string { return s.path }
