package banner

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"heraldbot/pkg/logx"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "banners.json"), time.UTC, logx.Nop())
	return NewRegistry(store, DefaultMinMinutes, logx.Nop())
}

func testJob(chat int64, mins int, next time.Time) Job {
	return Job{
		DestChat:        chat,
		SourceChat:      100,
		SourceMessageID: 7,
		IntervalMinutes: mins,
		NextRunAt:       next,
		DisplayLabel:    "test chat",
	}
}

func TestRegistryUpsertRejectsShortInterval(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	next := time.Now().Add(time.Minute)

	if err := reg.Upsert(testJob(1, 0, next)); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("Upsert with zero interval: got %v, want ErrIntervalTooShort", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("rejected upsert mutated registry: %d jobs", reg.Len())
	}
	if err := reg.Upsert(testJob(1, DefaultMinMinutes, next)); err != nil {
		t.Fatalf("Upsert at minimum interval: %v", err)
	}
}

func TestRegistryUpsertReplacesSameKey(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	next := time.Now().Add(time.Minute)

	if err := reg.Upsert(testJob(1, 30, next)); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := reg.Upsert(testJob(1, 90, next.Add(time.Hour))); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected replacement, got %d jobs", reg.Len())
	}
	job, ok := reg.Get(MakeKey(1, 0))
	if !ok || job.IntervalMinutes != 90 {
		t.Fatalf("replacement not applied: %+v (ok=%v)", job, ok)
	}
}

func TestRegistryThreadKeysAreDistinct(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	next := time.Now().Add(time.Minute)

	a := testJob(1, 30, next)
	b := testJob(1, 30, next)
	b.DestThread = 5
	if err := reg.Upsert(a); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := reg.Upsert(b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("chat and chat:thread collapsed into one job")
	}
}

func TestRegistryClear(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	next := time.Now().Add(time.Minute)
	for i := int64(1); i <= 3; i++ {
		if err := reg.Upsert(testJob(i, 30, next)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if n := reg.Clear(); n != 3 {
		t.Fatalf("Clear returned %d, want 3", n)
	}
	if got := reg.List(); len(got) != 0 {
		t.Fatalf("List after Clear: %d jobs", len(got))
	}
}

func TestRegistryDue(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	past := testJob(1, 30, now.Add(-time.Second))
	exact := testJob(2, 30, now)
	future := testJob(3, 30, now.Add(time.Second))
	for _, j := range []Job{past, exact, future} {
		if err := reg.Upsert(j); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	due := reg.Due(now)
	if len(due) != 2 {
		t.Fatalf("Due returned %d jobs, want 2 (past and exact)", len(due))
	}
	for _, j := range due {
		if j.DestChat == 3 {
			t.Fatalf("future job reported as due")
		}
	}
}

func TestRegistryAdvanceAbsentKey(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	if reg.Advance(MakeKey(42, 0), time.Now()) {
		t.Fatalf("Advance on absent key returned true")
	}
	if reg.Len() != 0 {
		t.Fatalf("Advance on absent key created a job")
	}
}

func TestRegistryListSortedByNextRun(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{2 * time.Hour, time.Hour, 3 * time.Hour} {
		if err := reg.Upsert(testJob(int64(i+1), 60, base.Add(offset))); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	got := reg.List()
	for i := 1; i < len(got); i++ {
		if got[i].NextRunAt.Before(got[i-1].NextRunAt) {
			t.Fatalf("List not sorted by NextRunAt: %v before %v", got[i].NextRunAt, got[i-1].NextRunAt)
		}
	}
}

func TestRegistryPersistsAcrossReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "banners.json")
	store := NewStore(path, time.UTC, logx.Nop())
	reg := NewRegistry(store, DefaultMinMinutes, logx.Nop())

	job := testJob(9, 45, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if err := reg.Upsert(job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fresh := NewRegistry(NewStore(path, time.UTC, logx.Nop()), DefaultMinMinutes, logx.Nop())
	fresh.Load()
	got, ok := fresh.Get(job.Key())
	if !ok {
		t.Fatalf("job missing after reload")
	}
	if !got.Equal(job) {
		t.Fatalf("job changed across reload:\n got %+v\nwant %+v", got, job)
	}
}
