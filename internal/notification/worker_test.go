package notification

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"laundry-fleet-backend/config"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/model"
	"laundry-fleet-backend/internal/store"
)

type fakeSender struct {
	mu       sync.Mutex
	payloads []string
	statuses map[string]int // endpoint -> response status
}

func (f *fakeSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, string(payload))
	status := http.StatusCreated
	if s, ok := f.statuses[sub.Endpoint]; ok {
		status = s
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

type subStore struct {
	mu      sync.Mutex
	subs    map[string][]model.PushSubscription
	deleted []string
}

func (s *subStore) SubscriptionsForMachine(_ context.Context, vendorDeviceID string) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[vendorDeviceID], nil
}

func (s *subStore) DeleteSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, endpoint)
	return nil
}

func (s *subStore) InsertMachineEvent(context.Context, *model.MachineEvent) error { return nil }
func (s *subStore) GetLastKnownStatus(context.Context, string) (string, error)    { return "", nil }
func (s *subStore) ListMachineEvents(context.Context, store.EventFilter) ([]model.MachineEvent, error) {
	return nil, nil
}
func (s *subStore) UpsertSubscription(context.Context, *model.PushSubscription) error { return nil }
func (s *subStore) GetSubscription(context.Context, string) (*model.PushSubscription, error) {
	return nil, nil
}
func (s *subStore) DB() *gorm.DB { return nil }

func testDirectory() *directory.Directory {
	return directory.New("SITE-A", []config.SiteConfig{{
		ID:    "SITE-A",
		Agent: "laundry-1",
		Machines: []config.MachineConfig{
			{VendorID: "vnd-1", LocalID: "w1", Label: "Washer 1", Type: "washer"},
		},
	}})
}

func TestWorkerPool_SendsCompletionNotifications(t *testing.T) {
	st := &subStore{subs: map[string][]model.PushSubscription{
		"vnd-1": {
			{Endpoint: "https://push.example/ep1", P256DH: "k1", Auth: "a1", VendorDeviceID: "vnd-1"},
			{Endpoint: "https://push.example/ep2", P256DH: "k2", Auth: "a2", VendorDeviceID: "vnd-1"},
		},
	}}
	sender := &fakeSender{}

	wp := NewWorkerPool(1, st, testDirectory(), &webpush.Options{})
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch("vnd-1")

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.payloads) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Contains(t, sender.payloads[0], "Washer 1")
	assert.Contains(t, sender.payloads[0], "finished")
}

func TestWorkerPool_DeletesExpiredSubscriptions(t *testing.T) {
	st := &subStore{subs: map[string][]model.PushSubscription{
		"vnd-1": {
			{Endpoint: "https://push.example/gone", P256DH: "k", Auth: "a", VendorDeviceID: "vnd-1"},
		},
	}}
	sender := &fakeSender{statuses: map[string]int{"https://push.example/gone": http.StatusGone}}

	wp := NewWorkerPool(1, st, testDirectory(), &webpush.Options{})
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch("vnd-1")

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.deleted) == 1
	}, 2*time.Second, 10*time.Millisecond)

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Equal(t, []string{"https://push.example/gone"}, st.deleted)
}
