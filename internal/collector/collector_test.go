package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-fleet-backend/config"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/model"
	"laundry-fleet-backend/internal/store"

	"gorm.io/gorm"
)

// memStore is an in-memory Store capturing inserted events.
type memStore struct {
	mu         sync.Mutex
	events     []model.MachineEvent
	lastStatus map[string]string
	failInsert bool
}

func newMemStore() *memStore {
	return &memStore{lastStatus: make(map[string]string)}
}

func (m *memStore) InsertMachineEvent(_ context.Context, event *model.MachineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return errors.New("insert failed")
	}
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) GetLastKnownStatus(_ context.Context, vendorDeviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus[vendorDeviceID], nil
}

func (m *memStore) ListMachineEvents(context.Context, store.EventFilter) ([]model.MachineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.MachineEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memStore) UpsertSubscription(context.Context, *model.PushSubscription) error { return nil }
func (m *memStore) GetSubscription(context.Context, string) (*model.PushSubscription, error) {
	return nil, nil
}
func (m *memStore) DeleteSubscription(context.Context, string) error { return nil }
func (m *memStore) SubscriptionsForMachine(context.Context, string) ([]model.PushSubscription, error) {
	return nil, nil
}
func (m *memStore) DB() *gorm.DB { return nil }

func (m *memStore) allEvents() []model.MachineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.MachineEvent, len(m.events))
	copy(out, m.events)
	return out
}

type captureNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *captureNotifier) Dispatch(vendorDeviceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, vendorDeviceID)
}

func testDirectory() *directory.Directory {
	return directory.New("SITE-A", []config.SiteConfig{{
		ID:    "SITE-A",
		Agent: "laundry-1",
		Machines: []config.MachineConfig{
			{VendorID: "vnd-1", LocalID: "w1", Label: "Washer 1", Type: "washer", Model: "W555H"},
			{VendorID: "vnd-2", LocalID: "d1", Label: "Dryer 1", Type: "dryer", Model: "T4130"},
		},
	}})
}

func observation(dir *directory.Directory, vendorID, statusID string) Observation {
	m, _ := dir.ByVendorID(vendorID)
	now := time.Now().UTC()
	return Observation{
		Mapping:        m,
		VendorStatusID: statusID,
		Timestamp:      now,
		ReceivedAt:     now,
	}
}

func TestSeed_LoadsBaselineFromStore(t *testing.T) {
	s := newMemStore()
	s.lastStatus["vnd-1"] = "AVAILABLE"
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)
	require.NoError(t, c.Seed(context.Background()))

	// vnd-1 has a baseline: the first differing push is a transition.
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	events := s.allEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsTransition)
	assert.Equal(t, "AVAILABLE", events[0].PreviousStatusID)

	// vnd-2 has no history: its first push only seeds the baseline.
	c.ObservePush(context.Background(), observation(dir, "vnd-2", "IN_USE"))
	assert.Len(t, s.allEvents(), 1)
}

func TestObserveSnapshot_AlwaysPersisted(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	// Three identical snapshots each produce a non-transition row.
	for i := 0; i < 3; i++ {
		c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))
	}

	events := s.allEvents()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.False(t, e.IsTransition)
		assert.Equal(t, model.SourceRestSnapshot, e.Source)
		assert.Empty(t, e.Initiator)
	}
	// First row has no baseline yet; later rows carry the prior status.
	assert.Equal(t, "", events[0].PreviousStatusID)
	assert.Equal(t, "AVAILABLE", events[1].PreviousStatusID)
	assert.Equal(t, "AVAILABLE", events[2].PreviousStatusID)
}

func TestObserveSnapshot_PreviousStatusFromBaseline(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))

	obs := observation(dir, "vnd-1", "IN_USE")
	obs.RemainingSeconds = 1800
	c.ObserveSnapshot(context.Background(), obs)

	events := s.allEvents()
	require.Len(t, events, 2)
	second := events[1]
	assert.Equal(t, "IN_USE", second.StatusID)
	assert.Equal(t, "AVAILABLE", second.PreviousStatusID)
	assert.Equal(t, 1800, second.RemainingSeconds)
	assert.False(t, second.IsTransition)
}

func TestObservePush_FirstObservationSeedsSilently(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	assert.Empty(t, s.allEvents(), "first push for an unknown baseline must not be persisted")

	// Same status again: still nothing.
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	assert.Empty(t, s.allEvents())

	// A real change is persisted as a transition.
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "END_OF_CYCLE"))
	events := s.allEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsTransition)
	assert.Equal(t, "IN_USE", events[0].PreviousStatusID)
	assert.Equal(t, model.SourceWSPush, events[0].Source)
}

func TestObservePush_AdminInitiatorAttribution(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))
	c.RecordPendingCommand("vnd-1", "ops@example.com", "start")

	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))

	events := s.allEvents()
	require.Len(t, events, 2)
	transition := events[1]
	assert.True(t, transition.IsTransition)
	assert.Equal(t, model.InitiatorAdmin, transition.Initiator)
	assert.Equal(t, "ops@example.com", transition.InitiatorUser)
	assert.Equal(t, "start", transition.CommandType)

	// The hint is consumed: a later running transition is organic.
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "END_OF_CYCLE"))
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	events = s.allEvents()
	last := events[len(events)-1]
	assert.Equal(t, model.InitiatorCustomer, last.Initiator)
	assert.Empty(t, last.InitiatorUser)
}

func TestObservePush_ExpiredPendingCommandIgnored(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, 10*time.Millisecond, nil)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))
	c.RecordPendingCommand("vnd-1", "ops@example.com", "start")
	time.Sleep(30 * time.Millisecond)

	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))

	events := s.allEvents()
	last := events[len(events)-1]
	assert.Equal(t, model.InitiatorCustomer, last.Initiator)
}

func TestObservePush_CycleNameTranslatedBeforeStorage(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))

	obs := observation(dir, "vnd-1", "IN_USE")
	obs.CycleID = "c-3"
	obs.CycleName = "Koudwas"
	c.ObservePush(context.Background(), obs)

	events := s.allEvents()
	last := events[len(events)-1]
	assert.Equal(t, "Cold Wash", last.CycleName)
	assert.Equal(t, "c-3", last.CycleID)
}

func TestPersistFailure_DoesNotCorruptBaseline(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	c := New(s, dir, time.Minute, nil)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "AVAILABLE"))

	s.failInsert = true
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	s.failInsert = false

	// Baseline advanced with the decision: the same status again is not a
	// transition, and the next change reports IN_USE as the previous value.
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "END_OF_CYCLE"))

	events := s.allEvents()
	last := events[len(events)-1]
	assert.Equal(t, "END_OF_CYCLE", last.StatusID)
	assert.Equal(t, "IN_USE", last.PreviousStatusID)
}

func TestNotifier_DispatchOnCycleCompletion(t *testing.T) {
	s := newMemStore()
	dir := testDirectory()
	n := &captureNotifier{}
	c := New(s, dir, time.Minute, n)

	c.ObserveSnapshot(context.Background(), observation(dir, "vnd-1", "IN_USE"))
	c.ObservePush(context.Background(), observation(dir, "vnd-1", "END_OF_CYCLE"))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{"vnd-1"}, n.ids)
}
