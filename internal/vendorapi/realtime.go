package vendorapi

import (
	"bytes"
	"context"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"laundry-fleet-backend/config"
)

// PushHandler receives one decoded realtime status message.
type PushHandler func(Machine)

// subscribeFrame asks the realtime channel for status pushes of one site.
type subscribeFrame struct {
	Action     string `json:"action"`
	LocationID string `json:"locationId"`
}

// Realtime maintains the vendor's push channel: one socket for all
// configured sites, an empty-frame keep-alive answered in kind, and exactly
// one scheduled reconnect after a failure. The active flag is checked and
// set atomically before any token exchange, so overlapping connect triggers
// can never open a second socket.
type Realtime struct {
	cfg     *config.VendorConfig
	rest    *Client
	sites   []string
	handler PushHandler

	active atomic.Bool

	mu        sync.Mutex
	conn      *websocket.Conn
	reconnect *time.Timer
	stopped   bool
}

// NewRealtime creates a realtime client for the given sites. The handler is
// invoked from the read loop for every decodable status message.
func NewRealtime(cfg *config.VendorConfig, rest *Client, sites []string, handler PushHandler) *Realtime {
	return &Realtime{
		cfg:     cfg,
		rest:    rest,
		sites:   sites,
		handler: handler,
	}
}

// Run establishes the push connection and keeps it alive until the context
// is cancelled. It blocks; callers run it in a goroutine.
func (r *Realtime) Run(ctx context.Context) {
	r.connect(ctx)
	<-ctx.Done()
	r.shutdown()
}

// NotifyActivity is an advisory signal that callers are interested in fresh
// push data. It is a no-op while a connection is open or being established.
func (r *Realtime) NotifyActivity(ctx context.Context) {
	r.connect(ctx)
}

// connect performs one token exchange and dial. The atomic check-and-set
// guarantees a single in-flight connection attempt across all triggers.
func (r *Realtime) connect(ctx context.Context) {
	if !r.active.CompareAndSwap(false, true) {
		return
	}

	token, err := r.rest.RealtimeAuth(ctx)
	if err != nil {
		log.Printf("realtime: token exchange failed: %v", err)
		r.connectFailed(ctx)
		return
	}

	endpoint := r.cfg.RealtimeURL + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		log.Printf("realtime: dial failed: %v", err)
		r.connectFailed(ctx)
		return
	}

	for _, siteID := range r.sites {
		if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", LocationID: siteID}); err != nil {
			log.Printf("realtime: subscribe for site %s failed: %v", siteID, err)
			conn.Close()
			r.connectFailed(ctx)
			return
		}
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		conn.Close()
		r.active.Store(false)
		return
	}
	r.conn = conn
	r.mu.Unlock()

	log.Printf("realtime: connected, subscribed to %d site(s)", len(r.sites))
	go r.readLoop(ctx, conn)
}

func (r *Realtime) connectFailed(ctx context.Context) {
	r.active.Store(false)
	r.scheduleReconnect(ctx)
}

// readLoop owns the socket. Keep-alive replies are written from here only,
// after the subscribe frames are already out, so the connection never sees
// concurrent writers.
func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			if r.conn == conn {
				r.conn = nil
			}
			stopped := r.stopped
			r.mu.Unlock()

			r.active.Store(false)
			if !stopped && ctx.Err() == nil {
				log.Printf("realtime: connection closed: %v", err)
				r.scheduleReconnect(ctx)
			}
			return
		}

		if len(bytes.TrimSpace(data)) == 0 {
			// Keep-alive: the server drops clients that do not answer an
			// empty frame with an empty frame within its timeout.
			if err := conn.WriteMessage(websocket.TextMessage, []byte{}); err != nil {
				log.Printf("realtime: keep-alive reply failed: %v", err)
			}
			continue
		}

		machine, ok := decodePush(data)
		if !ok {
			continue
		}
		r.handler(machine)
	}
}

// scheduleReconnect arms a single reconnect timer. A timer that is already
// armed wins; there is never more than one pending attempt.
func (r *Realtime) scheduleReconnect(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.reconnect != nil {
		return
	}
	r.reconnect = time.AfterFunc(r.cfg.ReconnectDelay, func() {
		r.mu.Lock()
		r.reconnect = nil
		stopped := r.stopped
		r.mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		r.connect(ctx)
	})
}

// Connected reports whether a connection is open or being established.
func (r *Realtime) Connected() bool {
	return r.active.Load()
}

func (r *Realtime) shutdown() {
	r.mu.Lock()
	r.stopped = true
	if r.reconnect != nil {
		r.reconnect.Stop()
		r.reconnect = nil
	}
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Printf("realtime: close frame failed: %v", err)
		}
		conn.Close()
	}
	r.active.Store(false)
}
