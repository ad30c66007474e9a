package datasync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"biomark/internal/metrics"
	"biomark/internal/model"
)

// Fetcher retrieves the authoritative collections from the remote
// service.
type Fetcher interface {
	Users(ctx context.Context) ([]model.User, error)
	Courses(ctx context.Context) ([]model.Course, error)
	Enrollments(ctx context.Context) ([]model.Enrollment, error)
	Sessions(ctx context.Context) ([]model.Session, error)
	Records(ctx context.Context) ([]model.Record, error)
}

// Syncer reconciles the local Store against the remote source of truth.
// Refetches run at startup, on a fixed interval, after every local
// mutation, and whenever a sibling context signals through the
// Broadcast. Each refetch carries a monotonic sequence number so a slow
// response from an older round can never overwrite a newer one.
type Syncer struct {
	store     *Store
	fetch     Fetcher
	broadcast Broadcast
	interval  time.Duration

	seq     atomic.Uint64
	mu      sync.Mutex
	applied map[string]uint64
}

// NewSyncer wires a syncer; interval is the polling period.
func NewSyncer(store *Store, fetch Fetcher, broadcast Broadcast, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	return &Syncer{
		store:     store,
		fetch:     fetch,
		broadcast: broadcast,
		interval:  interval,
		applied:   make(map[string]uint64),
	}
}

// FetchError reports which collections failed in a refetch round. The
// remaining collections were applied regardless.
type FetchError struct {
	Failed map[string]error
}

func (e *FetchError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	return fmt.Sprintf("refetch failed for collections %v", names)
}

// Run blocks until ctx is done, reconciling on the interval and on
// broadcast signals. The initial refetch happens immediately.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.refetch(ctx, "startup"); err != nil {
		log.Printf("initial refetch incomplete: %v", err)
	}

	var changes <-chan uint64
	if s.broadcast != nil {
		ch, err := s.broadcast.Changes(ctx)
		if err != nil {
			log.Printf("broadcast subscribe failed, polling only: %v", err)
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refetch(ctx, "interval"); err != nil {
				log.Printf("poll refetch incomplete: %v", err)
			}
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			metrics.BroadcastSignals.Inc()
			if err := s.refetch(ctx, "broadcast"); err != nil {
				log.Printf("signal refetch incomplete: %v", err)
			}
		}
	}
}

// RefetchNow runs one reconciliation round. Collections fail
// independently: an error fetching one never discards another.
func (s *Syncer) RefetchNow(ctx context.Context) error {
	return s.refetch(ctx, "manual")
}

// NotifyMutation refetches after a locally-initiated mutation completed
// and signals sibling contexts to do the same.
func (s *Syncer) NotifyMutation(ctx context.Context) {
	if err := s.refetch(ctx, "mutation"); err != nil {
		log.Printf("post-mutation refetch incomplete: %v", err)
	}
	if s.broadcast != nil {
		if err := s.broadcast.Publish(ctx); err != nil {
			log.Printf("broadcast publish failed: %v", err)
		}
	}
}

func (s *Syncer) refetch(ctx context.Context, trigger string) error {
	metrics.RefetchTotal.WithLabelValues(trigger).Inc()
	seq := s.seq.Add(1)
	failed := make(map[string]error)

	if users, err := s.fetch.Users(ctx); err != nil {
		failed["users"] = err
	} else if s.admit("users", seq) {
		s.store.ReplaceUsers(users)
	}
	if courses, err := s.fetch.Courses(ctx); err != nil {
		failed["courses"] = err
	} else if s.admit("courses", seq) {
		s.store.ReplaceCourses(courses)
	}
	if links, err := s.fetch.Enrollments(ctx); err != nil {
		failed["enrollments"] = err
	} else if s.admit("enrollments", seq) {
		s.store.ReplaceEnrollments(links)
	}
	if sessions, err := s.fetch.Sessions(ctx); err != nil {
		failed["sessions"] = err
	} else if s.admit("sessions", seq) {
		s.store.ReplaceSessions(sessions)
	}
	if records, err := s.fetch.Records(ctx); err != nil {
		failed["records"] = err
	} else if s.admit("records", seq) {
		s.store.ReplaceRecords(records)
	}

	if len(failed) == 0 {
		return nil
	}
	for name, err := range failed {
		metrics.RefetchFailures.WithLabelValues(name).Inc()
		log.Printf("refetch %s failed, keeping stale data: %v", name, err)
	}
	return &FetchError{Failed: failed}
}

// admit records that seq is about to be applied for a collection and
// rejects payloads from rounds older than the last applied one.
func (s *Syncer) admit(collection string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied[collection] {
		metrics.StaleRefetchDropped.Inc()
		return false
	}
	s.applied[collection] = seq
	return true
}
