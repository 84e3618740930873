package model

import "time"

// PushSubscription holds a browser push subscription tied to one machine.
// Machines are config-derived, not database rows, so the subscription keys
// the vendor device id directly.
type PushSubscription struct {
	Endpoint       string    `gorm:"primaryKey"`
	P256DH         string    `gorm:"column:p256dh;not null"`
	Auth           string    `gorm:"not null"`
	VendorDeviceID string    `gorm:"size:64;not null;index"`
	CreatedAt      time.Time `gorm:"not null"`
}
