package banner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"heraldbot/pkg/logx"
)

// Store persists the registry as one JSON document, rewritten wholesale on
// every mutation. Writes go to a temp file first and atomically replace
// the previous snapshot, so a crash mid-write never corrupts state.
//
// Timestamps are serialized in a fixed, explicit timezone so that a reload
// on a different host (or after a host timezone change) does not shift
// schedules.
type Store struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
	log  logx.Logger
}

// jobRecord is the wire shape of one persisted job.
type jobRecord struct {
	SourceChat      int64  `json:"source_chat"`
	SourceMessageID int    `json:"source_message_id"`
	ThreadID        int    `json:"thread_id,omitempty"`
	IntervalMinutes int    `json:"interval_minutes"`
	NextRunAt       string `json:"next_run_at"` // RFC3339 with explicit offset, sub-second kept
	DisplayLabel    string `json:"display_label"`
}

func NewStore(path string, loc *time.Location, log logx.Logger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, loc: loc, log: log}
}

// Load reads the snapshot. A missing or corrupt file yields an empty
// result and a logged warning, never a fatal error.
func (s *Store) Load() map[Key]Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := map[Key]Job{}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("banner snapshot unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return jobs
	}

	var raw map[string]jobRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("banner snapshot corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return jobs
	}

	for key, rec := range raw {
		job, err := s.decode(key, rec)
		if err != nil {
			s.log.Warn("banner snapshot entry skipped", logx.String("key", key), logx.Err(err))
			continue
		}
		jobs[job.Key()] = job
	}
	return jobs
}

// Save rewrites the snapshot. A write error leaves the prior on-disk state
// untouched.
func (s *Store) Save(jobs map[Key]Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string]jobRecord, len(jobs))
	for key, job := range jobs {
		raw[string(key)] = jobRecord{
			SourceChat:      job.SourceChat,
			SourceMessageID: job.SourceMessageID,
			ThreadID:        job.DestThread,
			IntervalMinutes: job.IntervalMinutes,
			NextRunAt:       job.NextRunAt.In(s.loc).Format(time.RFC3339Nano),
			DisplayLabel:    job.DisplayLabel,
		}
	}

	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) decode(key string, rec jobRecord) (Job, error) {
	chatID, keyThread, err := ParseKey(key)
	if err != nil {
		return Job{}, fmt.Errorf("bad key: %w", err)
	}
	at, err := time.Parse(time.RFC3339, rec.NextRunAt)
	if err != nil {
		return Job{}, fmt.Errorf("bad next_run_at: %w", err)
	}
	thread := rec.ThreadID
	if thread == 0 {
		thread = keyThread
	}
	if rec.IntervalMinutes < 1 {
		return Job{}, fmt.Errorf("bad interval_minutes: %d", rec.IntervalMinutes)
	}
	return Job{
		DestChat:        chatID,
		DestThread:      thread,
		SourceChat:      rec.SourceChat,
		SourceMessageID: rec.SourceMessageID,
		IntervalMinutes: rec.IntervalMinutes,
		NextRunAt:       at,
		DisplayLabel:    rec.DisplayLabel,
	}, nil
}

// sortedByNextRun orders a job slice by ascending next-run time, breaking
// ties by key for stable listings.
func sortedByNextRun(jobs []Job) []Job {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].NextRunAt.Equal(jobs[k].NextRunAt) {
			return jobs[i].NextRunAt.Before(jobs[k].NextRunAt)
		}
		return jobs[i].Key() < jobs[k].Key()
	})
	return jobs
}
