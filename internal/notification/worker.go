package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/model"
	"laundry-fleet-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans cycle-completion notifications out to subscribed push
// endpoints. The event collector dispatches a vendor device id whenever a
// machine finishes.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   store.Store
	dir     *directory.Directory
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, dir *directory.Directory, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size),
		store:   s,
		dir:     dir,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case vendorDeviceID := <-wp.jobs:
			wp.notifyForMachine(ctx, vendorDeviceID)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a completion notification for one machine.
func (wp *WorkerPool) Dispatch(vendorDeviceID string) {
	select {
	case wp.jobs <- vendorDeviceID:
	default:
		log.Printf("notification queue full, dropping job for device %s", vendorDeviceID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

// notifyForMachine fetches subscriptions and sends notifications for one
// machine.
func (wp *WorkerPool) notifyForMachine(ctx context.Context, vendorDeviceID string) {
	subscriptions, err := wp.store.SubscriptionsForMachine(ctx, vendorDeviceID)
	if err != nil {
		log.Printf("Error fetching subscriptions for device %s: %v", vendorDeviceID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := vendorDeviceID
	if mapping, ok := wp.dir.ByVendorID(vendorDeviceID); ok && mapping.Label != "" {
		label = mapping.Label
	}

	log.Printf("Sending %d notifications for device %s", len(subscriptions), vendorDeviceID)
	message := fmt.Sprintf("%s has finished its cycle and is ready to unload.", label)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification and prunes expired
// subscriptions.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
