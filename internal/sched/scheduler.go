package sched

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "covidboard/internal/log"
	"covidboard/internal/model"
)

var (
	// ErrDuplicate means a pending update already has the same name and
	// time. The dashboard drops such submissions without user feedback,
	// so callers normally just log this.
	ErrDuplicate = errors.New("update with same name and time already scheduled")

	// ErrNoTargets means the update would refresh nothing.
	ErrNoTargets = errors.New("update selects no refresh targets")
)

// FireFunc is invoked for every update whose time has been reached.
// It runs outside the scheduler lock; implementations that talk to the
// network should dispatch to a goroutine so a slow refresh cannot stall
// the tick.
type FireFunc func(model.Update)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler holds the pending scheduled updates and fires them as
// ticks pass their run times. It is driven by an external periodic
// Tick call (one source, never concurrent) rather than owning timers,
// which keeps firing deterministic and testable.
type Scheduler struct {
	mu      sync.Mutex
	entries []model.Update
	fire    FireFunc
	now     func() time.Time
}

func New(fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		fire: fire,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule inserts a pending update firing at the next occurrence of
// the given wall-clock time. A pending entry with the same (name, at)
// pair causes ErrDuplicate and no change.
func (s *Scheduler) Schedule(name string, at model.Clock, targets model.Targets, repeating bool) (model.Update, error) {
	if targets.Zero() {
		return model.Update{}, ErrNoTargets
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(name, at) >= 0 {
		appLog.Warn("tried to schedule update with same name and time as existing update",
			"name", name, "time", at.String())
		return model.Update{}, ErrDuplicate
	}

	u := model.Update{
		ID:        uuid.NewString(),
		Name:      name,
		At:        at,
		Targets:   targets,
		Repeating: repeating,
		NextRun:   at.Next(s.now()),
	}
	s.entries = append(s.entries, u)

	appLog.Info("scheduled update", "name", name, "time", at.String(),
		"repeating", repeating, "next_run", u.NextRun.Format(time.RFC3339))
	return u, nil
}

// ScheduleAfter inserts a one-shot update due after the given delay,
// used for the 30-second retry when an upstream API call fails. The
// duplicate rule still applies, so a burst of failures collapses into
// one retry.
func (s *Scheduler) ScheduleAfter(d time.Duration, name string, targets model.Targets) (model.Update, error) {
	if targets.Zero() {
		return model.Update{}, ErrNoTargets
	}
	if d < 0 {
		d = -d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := s.now().Add(d)
	at := model.Clock{Hour: due.Hour(), Minute: due.Minute()}
	if s.findLocked(name, at) >= 0 {
		return model.Update{}, ErrDuplicate
	}

	u := model.Update{
		ID:      uuid.NewString(),
		Name:    name,
		At:      at,
		Targets: targets,
		NextRun: due,
	}
	s.entries = append(s.entries, u)

	appLog.Info("scheduled one-shot update", "name", name, "delay", d.String())
	return u, nil
}

// Restore re-arms a persisted update at boot. The run time is
// recomputed from the wall-clock time, so a one-shot whose moment
// passed while the process was down runs at the next occurrence.
func (s *Scheduler) Restore(u model.Update) error {
	if u.Targets.Zero() {
		return ErrNoTargets
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(u.Name, u.At) >= 0 {
		return ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.NextRun = u.At.Next(s.now())
	s.entries = append(s.entries, u)

	appLog.Info("restored update", "name", u.Name, "time", u.At.String(), "repeating", u.Repeating)
	return nil
}

// Cancel removes the pending update matching exactly this name and
// time. It reports whether anything was removed.
func (s *Scheduler) Cancel(name string, at model.Clock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(name, at)
	if i < 0 {
		appLog.Warn("cancel requested for update that does not exist",
			"name", name, "time", at.String())
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	appLog.Info("cancelled update", "name", name, "time", at.String())
	return true
}

// Tick fires every pending update whose run time has been reached.
// Non-repeating entries are removed; repeating entries re-arm at the
// next future occurrence of their wall-clock time, so each fires at
// most once per day even when ticks were paused for longer than a day
// (host suspend). Callbacks run after the entry list has been settled.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	var due []model.Update
	kept := s.entries[:0]
	for _, u := range s.entries {
		if u.NextRun.After(now) {
			kept = append(kept, u)
			continue
		}
		due = append(due, u)
		if u.Repeating {
			u.NextRun = u.At.Next(now)
			kept = append(kept, u)
		}
	}
	s.entries = kept
	s.mu.Unlock()

	for _, u := range due {
		appLog.Info("running scheduled update", "name", u.Name,
			"targets", u.Targets.Describe(), "repeating", u.Repeating)
		if s.fire != nil {
			s.fire(u)
		}
	}
}

// Pending returns the pending updates ordered by next run time.
func (s *Scheduler) Pending() []model.Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Update, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

func (s *Scheduler) findLocked(name string, at model.Clock) int {
	for i, u := range s.entries {
		if u.Name == name && u.At == at {
			return i
		}
	}
	return -1
}
