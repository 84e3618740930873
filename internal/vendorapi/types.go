package vendorapi

import (
	"bytes"
	"encoding/json"
)

// Machine is the vendor's view of one device, with the two historical
// response shapes (status object nested under "status" vs. flat status
// fields) already flattened. Status codes are still vendor codes; mapping to
// the internal enum happens downstream.
type Machine struct {
	ID               string
	Model            string
	StatusID         string
	RemainingSeconds int
	RemainingVend    int
	DoorOpen         bool
	SelectedCycle    *Cycle
	SelectedModifier *Cycle
	LinkQuality      int
}

// Cycle is a vendor cycle or modifier reference.
type Cycle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Location is a vendor site record.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommandResult is the vendor's acknowledgement of a remote command.
type CommandResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// rawStatus carries the status fields of a machine payload. It appears
// either nested under a "status" key or flat on the machine object.
type rawStatus struct {
	StatusID         string `json:"statusId"`
	RemainingSeconds int    `json:"remainingSeconds"`
	RemainingVend    int    `json:"remainingVend"`
	DoorOpen         bool   `json:"doorOpen"`
	SelectedCycle    *Cycle `json:"selectedCycle"`
	SelectedModifier *Cycle `json:"selectedModifier"`
	LinkQuality      int    `json:"linkQuality"`
}

type machineRef struct {
	ID string `json:"id"`
}

// rawMachine tolerates every machine payload shape the vendor has shipped:
// the machine reference as "id", "machineId", or nested {"machine":{"id"}},
// and status fields nested or flat. Unknown vendor fields are dropped by the
// decoder and never reach callers.
type rawMachine struct {
	ID        string      `json:"id"`
	MachineID string      `json:"machineId"`
	Machine   *machineRef `json:"machine"`
	Model     string      `json:"model"`
	Status    *rawStatus  `json:"status"`
	rawStatus
}

// ref resolves the machine identifier across the historical encodings.
func (rm *rawMachine) ref() string {
	if rm.ID != "" {
		return rm.ID
	}
	if rm.MachineID != "" {
		return rm.MachineID
	}
	if rm.Machine != nil {
		return rm.Machine.ID
	}
	return ""
}

// flatten picks the nested status object when present, the flat fields
// otherwise.
func (rm *rawMachine) flatten() Machine {
	st := rm.rawStatus
	if rm.Status != nil {
		st = *rm.Status
	}
	return Machine{
		ID:               rm.ref(),
		Model:            rm.Model,
		StatusID:         st.StatusID,
		RemainingSeconds: st.RemainingSeconds,
		RemainingVend:    st.RemainingVend,
		DoorOpen:         st.DoorOpen,
		SelectedCycle:    st.SelectedCycle,
		SelectedModifier: st.SelectedModifier,
		LinkQuality:      st.LinkQuality,
	}
}

// decodeMachines unwraps the three machine-list response shapes: a
// paginated envelope {"data":[...],"meta":{...}}, a bare array, and a single
// flat object. Anything unrecognized decodes to an empty slice, never an
// error, so a surprising vendor payload degrades instead of breaking the
// read path.
func decodeMachines(body []byte) []Machine {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []Machine{}
	}

	if trimmed[0] == '[' {
		var raws []rawMachine
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return []Machine{}
		}
		return flattenAll(raws)
	}

	if trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 {
			var raws []rawMachine
			if err := json.Unmarshal(envelope.Data, &raws); err != nil {
				return []Machine{}
			}
			return flattenAll(raws)
		}

		var raw rawMachine
		if err := json.Unmarshal(trimmed, &raw); err == nil && raw.ref() != "" {
			return []Machine{raw.flatten()}
		}
	}

	return []Machine{}
}

func flattenAll(raws []rawMachine) []Machine {
	machines := make([]Machine, 0, len(raws))
	for i := range raws {
		if raws[i].ref() == "" {
			continue
		}
		machines = append(machines, raws[i].flatten())
	}
	return machines
}

// decodePush decodes one realtime status message into a Machine. Returns
// false for frames without a resolvable machine reference.
func decodePush(data []byte) (Machine, bool) {
	var raw rawMachine
	if err := json.Unmarshal(data, &raw); err != nil {
		return Machine{}, false
	}
	if raw.ref() == "" {
		return Machine{}, false
	}
	return raw.flatten(), true
}
