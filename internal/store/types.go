package store

import "time"

// EventFilter narrows a machine-event listing. Zero values mean "no
// constraint"; Limit <= 0 falls back to a server-side default.
type EventFilter struct {
	AgentID   string
	MachineID string // vendor device id
	From      time.Time
	To        time.Time
	Limit     int
}

// defaultEventLimit bounds unfiltered event listings.
const defaultEventLimit = 200
