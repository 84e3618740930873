package collector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/model"
	"laundry-fleet-backend/internal/statusmap"
	"laundry-fleet-backend/internal/store"
)

// Observation is one normalized status reading for a mapped device, from
// either transport.
type Observation struct {
	Mapping          *directory.Mapping
	VendorStatusID   string
	RemainingSeconds int
	RemainingCredit  int
	DoorOpen         bool
	CycleID          string
	CycleName        string
	LinkQuality      int
	Timestamp        time.Time
	ReceivedAt       time.Time
}

// pendingCommand is the short-lived hint left behind by a successful
// operator-issued start command.
type pendingCommand struct {
	User        string
	CommandType string
	RecordedAt  time.Time
}

// Notifier receives vendor device ids whose machines just finished a cycle.
type Notifier interface {
	Dispatch(vendorDeviceID string)
}

// Collector turns raw observations into the persisted machine-event log. It
// owns the per-device baseline (last known vendor status) and decides
// whether an observation is a real transition or a repeat. All decisions and
// appends happen under one mutex, which gives per-device ordering.
type Collector struct {
	store    store.Store
	dir      *directory.Directory
	pending  *cache.Cache
	notifier Notifier

	mu       sync.Mutex
	baseline map[string]string // vendorDeviceID -> last vendor status code
}

// New creates a collector. The notifier may be nil.
func New(s store.Store, dir *directory.Directory, pendingTTL time.Duration, notifier Notifier) *Collector {
	return &Collector{
		store:    s,
		dir:      dir,
		pending:  cache.New(pendingTTL, 2*pendingTTL),
		notifier: notifier,
		baseline: make(map[string]string),
	}
}

// Seed loads the last known status of every mapped device from the store.
// Devices without history stay absent from the baseline map, which is the
// unknown-baseline state.
func (c *Collector) Seed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.dir.AllMappings() {
		statusID, err := c.store.GetLastKnownStatus(ctx, m.VendorDeviceID)
		if err != nil {
			return fmt.Errorf("seeding baseline for device %s: %w", m.VendorDeviceID, err)
		}
		if statusID != "" {
			c.baseline[m.VendorDeviceID] = statusID
		}
	}
	log.Printf("collector: baseline seeded for %d of %d devices", len(c.baseline), len(c.dir.AllMappings()))
	return nil
}

// RecordPendingCommand registers the hint that an operator just started this
// machine. The record expires on its own if no running transition follows.
func (c *Collector) RecordPendingCommand(vendorDeviceID, user, commandType string) {
	c.pending.SetDefault(vendorDeviceID, pendingCommand{
		User:        user,
		CommandType: commandType,
		RecordedAt:  time.Now().UTC(),
	})
}

// takePending consumes the pending-command hint for a device, if any.
func (c *Collector) takePending(vendorDeviceID string) (pendingCommand, bool) {
	v, found := c.pending.Get(vendorDeviceID)
	if !found {
		return pendingCommand{}, false
	}
	c.pending.Delete(vendorDeviceID)
	return v.(pendingCommand), true
}

// ObserveSnapshot records one REST poll observation. Snapshots are always
// persisted, transition or not, so the log doubles as a polling audit trail.
func (c *Collector) ObserveSnapshot(ctx context.Context, obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, known := c.baseline[obs.Mapping.VendorDeviceID]
	changed := known && previous != obs.VendorStatusID
	c.baseline[obs.Mapping.VendorDeviceID] = obs.VendorStatusID

	event := c.buildEvent(obs, previous, model.SourceRestSnapshot, false)
	c.persist(ctx, event)

	if changed {
		c.afterTransition(previous, obs)
	}
}

// ObservePush records one realtime push observation. Pushes are persisted
// only when they change the baseline; the very first push for a device with
// no baseline seeds it silently.
func (c *Collector) ObservePush(ctx context.Context, obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, known := c.baseline[obs.Mapping.VendorDeviceID]
	if !known {
		c.baseline[obs.Mapping.VendorDeviceID] = obs.VendorStatusID
		return
	}
	if previous == obs.VendorStatusID {
		return
	}

	c.baseline[obs.Mapping.VendorDeviceID] = obs.VendorStatusID

	event := c.buildEvent(obs, previous, model.SourceWSPush, true)
	c.attribute(event, obs)
	c.persist(ctx, event)

	c.afterTransition(previous, obs)
}

// buildEvent assembles the persisted row. The cycle name is translated to
// its canonical English form before storage.
func (c *Collector) buildEvent(obs Observation, previous, source string, isTransition bool) *model.MachineEvent {
	return &model.MachineEvent{
		Timestamp:            obs.Timestamp,
		SiteID:               obs.Mapping.SiteID,
		VendorDeviceID:       obs.Mapping.VendorDeviceID,
		LocalID:              obs.Mapping.LocalID,
		AgentID:              obs.Mapping.AgentID,
		DeviceType:           string(obs.Mapping.DeviceType),
		StatusID:             obs.VendorStatusID,
		PreviousStatusID:     previous,
		RemainingSeconds:     obs.RemainingSeconds,
		RemainingCreditUnits: obs.RemainingCredit,
		IsDoorOpen:           obs.DoorOpen,
		CycleID:              obs.CycleID,
		CycleName:            statusmap.TranslateCycleName(obs.CycleName),
		LinkQuality:          obs.LinkQuality,
		ReceivedAt:           obs.ReceivedAt,
		Source:               source,
		IsTransition:         isTransition,
	}
}

// attribute decides who triggered a transition into running: an operator
// whose start command left a pending hint, or a customer at the machine.
func (c *Collector) attribute(event *model.MachineEvent, obs Observation) {
	if statusmap.Map(obs.VendorStatusID) != statusmap.StatusRunning {
		return
	}
	if hint, ok := c.takePending(obs.Mapping.VendorDeviceID); ok {
		event.Initiator = model.InitiatorAdmin
		event.InitiatorUser = hint.User
		event.CommandType = hint.CommandType
		return
	}
	event.Initiator = model.InitiatorCustomer
}

// persist appends one event. A failed write is logged and dropped from the
// log only; the baseline keeps the decided value so later observations stay
// consistent, and the next poll re-observes the same state anyway.
func (c *Collector) persist(ctx context.Context, event *model.MachineEvent) {
	if err := c.store.InsertMachineEvent(ctx, event); err != nil {
		log.Printf("collector: failed to persist event for device %s: %v", event.VendorDeviceID, err)
	}
}

// afterTransition fires completion notifications when a machine goes from a
// busy state to idle.
func (c *Collector) afterTransition(previous string, obs Observation) {
	if c.notifier == nil {
		return
	}
	wasBusy := statusmap.Map(previous) == statusmap.StatusRunning
	if wasBusy && statusmap.Map(obs.VendorStatusID) == statusmap.StatusIdle {
		c.notifier.Dispatch(obs.Mapping.VendorDeviceID)
	}
}
