package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/machines"
	"laundry-fleet-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	machines *machines.Service
	store    store.Store
	dir      *directory.Directory
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *machines.Service, s store.Store, dir *directory.Directory, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		machines: svc,
		store:    s,
		dir:      dir,
		webpush:  webpushOptions,
	}
}
