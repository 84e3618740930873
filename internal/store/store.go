package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-fleet-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// InsertMachineEvent appends one event row; atomic per call.
	InsertMachineEvent(ctx context.Context, event *model.MachineEvent) error
	// GetLastKnownStatus returns the most recently recorded vendor status
	// code for a device, or "" when the device has no history.
	GetLastKnownStatus(ctx context.Context, vendorDeviceID string) (string, error)
	// ListMachineEvents returns events matching the filter, newest first.
	ListMachineEvents(ctx context.Context, filter EventFilter) ([]model.MachineEvent, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForMachine(ctx context.Context, vendorDeviceID string) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) InsertMachineEvent(ctx context.Context, event *model.MachineEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert machine event for device %s: %w", event.VendorDeviceID, err)
	}
	return nil
}

func (s *gormStore) GetLastKnownStatus(ctx context.Context, vendorDeviceID string) (string, error) {
	var event model.MachineEvent
	err := s.db.WithContext(ctx).
		Select("status_id").
		Where("vendor_device_id = ?", vendorDeviceID).
		Order("timestamp DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch last known status for device %s: %w", vendorDeviceID, err)
	}
	return event.StatusID, nil
}

func (s *gormStore) ListMachineEvents(ctx context.Context, filter EventFilter) ([]model.MachineEvent, error) {
	query := s.db.WithContext(ctx).Model(&model.MachineEvent{})

	if filter.AgentID != "" {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if filter.MachineID != "" {
		query = query.Where("vendor_device_id = ?", filter.MachineID)
	}
	if !filter.From.IsZero() {
		query = query.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("timestamp <= ?", filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	var events []model.MachineEvent
	if err := query.Order("timestamp DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list machine events: %w", err)
	}
	return events, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "vendor_device_id"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{}, "endpoint = ?", endpoint).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *gormStore) SubscriptionsForMachine(ctx context.Context, vendorDeviceID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("vendor_device_id = ?", vendorDeviceID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for device %s: %w", vendorDeviceID, err)
	}
	return subs, nil
}
