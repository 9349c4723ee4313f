// Package alias maps short command names to literal reply texts. Same
// whole-file persistence mechanism as the banner store, no temporal
// behavior.
package alias

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"heraldbot/pkg/logx"
)

type Store struct {
	mu      sync.Mutex
	path    string
	log     logx.Logger
	entries map[string]string
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log, entries: map[string]string{}}
}

// Load reads the alias file; missing or corrupt files yield an empty map.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("alias file unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		s.log.Warn("alias file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return
	}
	s.entries = m
}

// Get looks an alias up by name (case-insensitive).
func (s *Store) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.entries[normalize(name)]
	return text, ok
}

func (s *Store) Set(name, text string) {
	name = normalize(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = text
	s.saveLocked()
}

func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = normalize(name)
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	s.saveLocked()
	return true
}

// Names returns all alias names sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Store) saveLocked() {
	if s.path == "" {
		return
	}
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.log.Warn("alias marshal failed", logx.Err(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Warn("alias save failed", logx.Err(err))
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		s.log.Warn("alias save failed", logx.Err(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("alias save failed", logx.Err(err))
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
