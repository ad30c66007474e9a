package datasync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomark/internal/model"
)

type fakeFetcher struct {
	mu          sync.Mutex
	users       []model.User
	courses     []model.Course
	enrollments []model.Enrollment
	sessions    []model.Session
	records     []model.Record
	recordsErr  error
}

func (f *fakeFetcher) setUsers(users []model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = users
}

func (f *fakeFetcher) Users(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, nil
}
func (f *fakeFetcher) Courses(context.Context) ([]model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courses, nil
}
func (f *fakeFetcher) Enrollments(context.Context) ([]model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrollments, nil
}
func (f *fakeFetcher) Sessions(context.Context) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, nil
}
func (f *fakeFetcher) Records(context.Context) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.recordsErr
}

func TestRefetchAppliesAllCollections(t *testing.T) {
	store := NewStore()
	fetch := &fakeFetcher{
		users:    []model.User{{ID: "1"}},
		courses:  []model.Course{{ID: "1"}},
		sessions: []model.Session{{ID: "3"}},
		records:  []model.Record{{ID: "9", StudentID: "5", SessionID: "3"}},
	}
	s := NewSyncer(store, fetch, nil, time.Minute)

	require.NoError(t, s.RefetchNow(context.Background()))
	assert.Len(t, store.Users(), 1)
	assert.Len(t, store.Sessions(), 1)
	assert.Len(t, store.Records(), 1)
}

func TestRefetchToleratesPartialFailure(t *testing.T) {
	store := NewStore()
	store.ReplaceRecords([]model.Record{{ID: "9", StudentID: "5", SessionID: "3"}})
	fetch := &fakeFetcher{
		users:      []model.User{{ID: "1"}, {ID: "2"}},
		recordsErr: errors.New("records endpoint down"),
	}
	s := NewSyncer(store, fetch, nil, time.Minute)

	err := s.RefetchNow(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Failed, "records")

	assert.Len(t, store.Users(), 2, "healthy collections still applied")
	assert.Len(t, store.Records(), 1, "failed collection keeps stale data")
}

func TestAdmitDropsStaleRounds(t *testing.T) {
	s := NewSyncer(NewStore(), &fakeFetcher{}, nil, time.Minute)

	assert.True(t, s.admit("users", 5))
	assert.False(t, s.admit("users", 3), "a slower older round must not overwrite")
	assert.True(t, s.admit("users", 5), "the same round may re-apply")
	assert.True(t, s.admit("users", 6))
	assert.True(t, s.admit("courses", 1), "sequences are tracked per collection")
}

func TestMemoryBroadcastFanout(t *testing.T) {
	b := NewMemoryBroadcast()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Changes(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background()))
	require.NoError(t, b.Publish(context.Background()))

	assert.Equal(t, uint64(1), <-ch)
	assert.Equal(t, uint64(2), <-ch)
	assert.Equal(t, uint64(2), b.Version())
}

func TestBroadcastSignalTriggersSiblingRefetch(t *testing.T) {
	hub := NewMemoryBroadcast()

	fetchA := &fakeFetcher{}
	storeA := NewStore()
	syncerA := NewSyncer(storeA, fetchA, hub, time.Hour)

	fetchB := &fakeFetcher{}
	storeB := NewStore()
	syncerB := NewSyncer(storeB, fetchB, hub, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncerB.Run(ctx)

	// Give the sibling time to subscribe before the mutation lands.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 1
	}, time.Second, 5*time.Millisecond)

	fetchB.setUsers([]model.User{{ID: "1"}, {ID: "2"}})
	syncerA.NotifyMutation(context.Background())

	require.Eventually(t, func() bool {
		return len(storeB.Users()) == 2
	}, 2*time.Second, 10*time.Millisecond, "sibling context converges after a broadcast")
}
