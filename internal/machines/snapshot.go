package machines

import (
	"time"

	"laundry-fleet-backend/internal/collector"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/statusmap"
	"laundry-fleet-backend/internal/vendorapi"
)

// sourceVendor identifies the upstream machine vendor in snapshots.
const sourceVendor = "connected-laundry"

// CycleRef is a selected cycle or modifier on a machine.
type CycleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the normalized view of one machine at one instant. It is
// rebuilt wholesale from each observation; vendor fields outside this shape
// never leak through.
type Snapshot struct {
	LocalID              string           `json:"localId"`
	Label                string           `json:"label"`
	DeviceType           string           `json:"deviceType"`
	Status               statusmap.Status `json:"status"`
	RemainingSeconds     int              `json:"remainingSeconds"`
	RemainingCreditUnits int              `json:"remainingCreditUnits"`
	IsDoorOpen           bool             `json:"isDoorOpen"`
	SelectedCycle        *CycleRef        `json:"selectedCycle,omitempty"`
	SelectedModifier     *CycleRef        `json:"selectedModifier,omitempty"`
	SourceVendor         string           `json:"sourceVendor"`
	VendorDeviceID       string           `json:"vendorDeviceId"`
	Model                string           `json:"model"`
	LastUpdated          time.Time        `json:"lastUpdated"`
}

// newSnapshot builds the normalized snapshot for a mapped device.
func newSnapshot(mapping *directory.Mapping, m vendorapi.Machine, at time.Time) Snapshot {
	snap := Snapshot{
		LocalID:              mapping.LocalID,
		Label:                mapping.Label,
		DeviceType:           string(mapping.DeviceType),
		Status:               statusmap.Map(m.StatusID),
		RemainingSeconds:     m.RemainingSeconds,
		RemainingCreditUnits: m.RemainingVend,
		IsDoorOpen:           m.DoorOpen,
		SourceVendor:         sourceVendor,
		VendorDeviceID:       mapping.VendorDeviceID,
		Model:                mapping.Model,
		LastUpdated:          at,
	}
	if m.SelectedCycle != nil {
		snap.SelectedCycle = &CycleRef{
			ID:   m.SelectedCycle.ID,
			Name: statusmap.TranslateCycleName(m.SelectedCycle.Name),
		}
	}
	if m.SelectedModifier != nil {
		snap.SelectedModifier = &CycleRef{
			ID:   m.SelectedModifier.ID,
			Name: statusmap.TranslateCycleName(m.SelectedModifier.Name),
		}
	}
	return snap
}

// newObservation builds the collector's input for a mapped device.
func newObservation(mapping *directory.Mapping, m vendorapi.Machine, at time.Time) collector.Observation {
	obs := collector.Observation{
		Mapping:          mapping,
		VendorStatusID:   m.StatusID,
		RemainingSeconds: m.RemainingSeconds,
		RemainingCredit:  m.RemainingVend,
		DoorOpen:         m.DoorOpen,
		LinkQuality:      m.LinkQuality,
		Timestamp:        at,
		ReceivedAt:       at,
	}
	if m.SelectedCycle != nil {
		obs.CycleID = m.SelectedCycle.ID
		obs.CycleName = m.SelectedCycle.Name
	}
	return obs
}
