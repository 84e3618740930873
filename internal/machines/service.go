package machines

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"laundry-fleet-backend/config"
	"laundry-fleet-backend/internal/collector"
	"laundry-fleet-backend/internal/command"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/model"
	"laundry-fleet-backend/internal/vendorapi"
)

// ErrNoMapping is returned for a command aimed at an unmapped machine.
var ErrNoMapping = errors.New("no mapping for agent/machine")

// Subscriber receives fresh machine snapshots for one agent whenever new
// data arrives from either transport.
type Subscriber func(agentID string, machines []Snapshot)

// siteEntry is one cached per-site status set.
type siteEntry struct {
	Machines        []Snapshot
	LastRefreshedAt time.Time
	SourceTransport string
}

// Service is the machine-status orchestrator: it serves reads from a
// bounded-staleness per-site cache, deduplicates concurrent fetches,
// dispatches validated remote commands, and feeds every observation to the
// event collector.
type Service struct {
	cfg      *config.VendorConfig
	client   *vendorapi.Client
	dir      *directory.Directory
	coll     *collector.Collector
	cache    *cache.Cache
	group    singleflight.Group
	realtime *vendorapi.Realtime

	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewService wires the orchestrator. The realtime channel is created when a
// realtime URL is configured; without one the service is poll-only.
func NewService(cfg *config.VendorConfig, client *vendorapi.Client, dir *directory.Directory, coll *collector.Collector) *Service {
	s := &Service{
		cfg:    cfg,
		client: client,
		dir:    dir,
		coll:   coll,
		cache:  cache.New(cfg.Freshness, 2*cfg.Freshness),
	}
	if cfg.RealtimeURL != "" {
		s.realtime = vendorapi.NewRealtime(cfg, client, s.sites(), s.handlePush)
	}
	return s
}

// Subscribe registers a status-update callback. Not safe to call after Run
// from multiple goroutines without external coordination of the callback
// itself; callbacks must not block.
func (s *Service) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// sites returns the distinct vendor site ids behind the configured agents.
func (s *Service) sites() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, agentID := range s.dir.Agents() {
		siteID, ok := s.dir.SiteForAgent(agentID)
		if !ok {
			continue
		}
		if _, dup := seen[siteID]; dup {
			continue
		}
		seen[siteID] = struct{}{}
		out = append(out, siteID)
	}
	return out
}

// Run starts the periodic poll loop and the always-connected push channel,
// blocking until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Println("machines: starting orchestrator...")

	if s.realtime != nil {
		go s.realtime.Run(ctx)
	}

	s.pollAll(ctx)

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("machines: orchestrator shutting down.")
			return
		case <-timer.C:
			s.pollAll(ctx)
			timer.Reset(s.cfg.PollInterval)
		}
	}
}

// NotifyActivity is an advisory signal from callers that push data is
// wanted. With the always-connected policy it is a no-op whenever the
// channel is already up or connecting.
func (s *Service) NotifyActivity(ctx context.Context) {
	if s.realtime != nil {
		s.realtime.NotifyActivity(ctx)
	}
}

func (s *Service) pollAll(ctx context.Context) {
	for _, siteID := range s.sites() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.refreshSite(ctx, siteID); err != nil {
			log.Printf("machines: poll for site %s failed: %v", siteID, err)
		}
	}
}

// GetMachinesOnDemand returns the current snapshots for an agent's site. A
// fresh cache entry is served without a network call; otherwise exactly one
// REST fetch per site runs, shared across concurrent callers. Unknown
// agents yield an empty slice, not an error.
func (s *Service) GetMachinesOnDemand(ctx context.Context, agentID string) ([]Snapshot, error) {
	siteID, ok := s.dir.SiteForAgent(agentID)
	if !ok {
		return []Snapshot{}, nil
	}

	if entry, found := s.cache.Get(siteID); found {
		return copySnapshots(entry.(*siteEntry).Machines), nil
	}

	snaps, err := s.refreshSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return copySnapshots(snaps), nil
}

// refreshSite performs the deduplicated fetch for one site.
func (s *Service) refreshSite(ctx context.Context, siteID string) ([]Snapshot, error) {
	v, err, _ := s.group.Do(siteID, func() (any, error) {
		return s.fetchSite(ctx, siteID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Snapshot), nil
}

// fetchSite polls the vendor for one site, updates the cache, feeds the
// collector, and fans out to subscribers.
func (s *Service) fetchSite(ctx context.Context, siteID string) ([]Snapshot, error) {
	vendorMachines, err := s.client.ListMachines(ctx, siteID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snaps := make([]Snapshot, 0, len(vendorMachines))
	for _, vm := range vendorMachines {
		mapping, ok := s.dir.ByVendorID(vm.ID)
		if !ok || mapping.SiteID != siteID {
			continue
		}
		snaps = append(snaps, newSnapshot(mapping, vm, now))
		s.coll.ObserveSnapshot(ctx, newObservation(mapping, vm, now))
	}

	s.cache.SetDefault(siteID, &siteEntry{
		Machines:        snaps,
		LastRefreshedAt: now,
		SourceTransport: model.SourceRestSnapshot,
	})
	s.fanOut(siteID, snaps)
	return snaps, nil
}

// handlePush folds one realtime status message into the cache and the event
// log. Pushes for unmapped machines are dropped.
func (s *Service) handlePush(vm vendorapi.Machine) {
	mapping, ok := s.dir.ByVendorID(vm.ID)
	if !ok {
		return
	}

	now := time.Now().UTC()
	s.coll.ObservePush(context.Background(), newObservation(mapping, vm, now))

	snap := newSnapshot(mapping, vm, now)
	entry, expiration, found := s.cache.GetWithExpiration(mapping.SiteID)
	if !found {
		s.fanOut(mapping.SiteID, []Snapshot{snap})
		return
	}

	old := entry.(*siteEntry)
	updated := &siteEntry{
		Machines:        copySnapshots(old.Machines),
		LastRefreshedAt: old.LastRefreshedAt,
		SourceTransport: model.SourceWSPush,
	}
	replaced := false
	for i := range updated.Machines {
		if updated.Machines[i].VendorDeviceID == snap.VendorDeviceID {
			updated.Machines[i] = snap
			replaced = true
			break
		}
	}
	if !replaced {
		updated.Machines = append(updated.Machines, snap)
	}

	// Keep the entry's remaining freshness: a single-machine push refreshes
	// that machine, not the whole site.
	ttl := time.Until(expiration)
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	s.cache.Set(mapping.SiteID, updated, ttl)
	s.fanOut(mapping.SiteID, updated.Machines)
}

// fanOut notifies subscribers for every agent serving the given site.
func (s *Service) fanOut(siteID string, snaps []Snapshot) {
	s.mu.RLock()
	subscribers := make([]Subscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()
	if len(subscribers) == 0 {
		return
	}

	for _, agentID := range s.dir.Agents() {
		if agentSite, ok := s.dir.SiteForAgent(agentID); !ok || agentSite != siteID {
			continue
		}
		for _, fn := range subscribers {
			fn(agentID, copySnapshots(snaps))
		}
	}
}

// SendMachineCommand validates and dispatches one remote command. A
// successful start-class command from a named operator leaves a pending
// hint for initiator attribution.
func (s *Service) SendMachineCommand(ctx context.Context, agentID, localID, commandType string, params map[string]any, user string) (vendorapi.CommandResult, error) {
	mapping, ok := s.dir.ByAgentLocal(agentID, localID)
	if !ok {
		return vendorapi.CommandResult{}, ErrNoMapping
	}

	payload, err := command.Build(commandType, params)
	if err != nil {
		return vendorapi.CommandResult{}, err
	}

	result, err := s.client.SendCommand(ctx, mapping.SiteID, mapping.VendorDeviceID, payload)
	if err != nil {
		return vendorapi.CommandResult{}, err
	}

	if command.IsStart(commandType) && user != "" {
		s.coll.RecordPendingCommand(mapping.VendorDeviceID, user, commandType)
	}
	return result, nil
}

// GetCommandStatus fetches the completion status of a dispatched command.
func (s *Service) GetCommandStatus(ctx context.Context, agentID, localID, commandID string) (vendorapi.CommandResult, error) {
	mapping, ok := s.dir.ByAgentLocal(agentID, localID)
	if !ok {
		return vendorapi.CommandResult{}, ErrNoMapping
	}
	return s.client.GetCommandStatus(ctx, mapping.SiteID, mapping.VendorDeviceID, commandID)
}

// ListCycles fetches the cycle definitions available on one machine.
func (s *Service) ListCycles(ctx context.Context, agentID, localID string) ([]vendorapi.Cycle, error) {
	mapping, ok := s.dir.ByAgentLocal(agentID, localID)
	if !ok {
		return nil, ErrNoMapping
	}
	return s.client.ListCycles(ctx, mapping.SiteID, mapping.VendorDeviceID)
}

func copySnapshots(snaps []Snapshot) []Snapshot {
	out := make([]Snapshot, len(snaps))
	copy(out, snaps)
	return out
}
