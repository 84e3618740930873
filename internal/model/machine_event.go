package model

import "time"

// Event source transports.
const (
	SourceRestSnapshot = "rest_snapshot"
	SourceWSPush       = "ws_push"
)

// Transition initiators.
const (
	InitiatorAdmin    = "admin"
	InitiatorCustomer = "customer"
)

// MachineEvent is one observed machine status, append-only. Transition rows
// record a status change against the device's baseline; snapshot rows record
// a poll observation regardless of change.
type MachineEvent struct {
	ID                   int64     `gorm:"autoIncrement;primaryKey"`
	Timestamp            time.Time `gorm:"not null;index:idx_machine_events_device_time,priority:2;index"`
	SiteID               string    `gorm:"size:64;not null;index"`
	VendorDeviceID       string    `gorm:"size:64;not null;index:idx_machine_events_device_time,priority:1"`
	LocalID              string    `gorm:"size:32;not null"`
	AgentID              string    `gorm:"size:64;not null;index"`
	DeviceType           string    `gorm:"size:16;not null"`
	StatusID             string    `gorm:"size:32;not null"`
	PreviousStatusID     string    `gorm:"size:32"`
	RemainingSeconds     int
	RemainingCreditUnits int
	IsDoorOpen           bool
	CycleID              string `gorm:"size:64"`
	CycleName            string `gorm:"size:128"`
	LinkQuality          int
	ReceivedAt           time.Time `gorm:"not null"`
	Source               string    `gorm:"size:16;not null"`
	IsTransition         bool      `gorm:"not null"`
	Initiator            string    `gorm:"size:16"`
	InitiatorUser        string    `gorm:"size:128"`
	CommandType          string    `gorm:"size:32"`
}
