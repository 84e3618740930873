package command

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned for a command type outside the whitelist.
var ErrUnknownCommand = errors.New("unknown command type")

// ParamError reports a parameter key outside a command's declared schema.
type ParamError struct {
	Key     string
	Command string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("Unknown parameter '%s' for command '%s'", e.Key, e.Command)
}

// Payload is the vendor-facing wire form of a remote machine command. Params
// is omitted entirely for commands that take no parameters.
type Payload struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// spec describes one permissible command: its vendor identifier and the
// exact set of parameter keys it accepts.
type spec struct {
	vendorType string
	params     map[string]struct{}
}

func paramSet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// commands is the whitelist of remote command types.
var commands = map[string]spec{
	"start":               {vendorType: "MACHINE_START", params: paramSet("cycleId", "modifierId")},
	"stop":                {vendorType: "MACHINE_STOP", params: paramSet()},
	"vend-credit":         {vendorType: "VEND_CREDIT", params: paramSet("amount")},
	"start-with-duration": {vendorType: "START_WITH_TIME", params: paramSet("durationSeconds")},
	"clear-error":         {vendorType: "CLEAR_ERROR", params: paramSet()},
	"set-out-of-order":    {vendorType: "SET_OUT_OF_ORDER", params: paramSet("outOfOrder")},
	"advance-step":        {vendorType: "ADVANCE_STEP", params: paramSet()},
	"clear-partial-vend":  {vendorType: "CLEAR_PARTIAL_VEND", params: paramSet()},
}

// Build validates a command type and its parameters against the whitelist
// and produces the vendor payload. A "type" key inside params is always
// stripped; the vendor command identifier is resolved from commandType alone
// and can never be overridden by caller-supplied parameters.
func Build(commandType string, params map[string]any) (Payload, error) {
	sp, ok := commands[commandType]
	if !ok {
		return Payload{}, ErrUnknownCommand
	}

	var accepted map[string]any
	for key, value := range params {
		if key == "type" {
			continue
		}
		if _, allowed := sp.params[key]; !allowed {
			return Payload{}, &ParamError{Key: key, Command: commandType}
		}
		if accepted == nil {
			accepted = make(map[string]any)
		}
		accepted[key] = value
	}

	return Payload{Type: sp.vendorType, Params: accepted}, nil
}

// Types returns the whitelisted command type names.
func Types() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}

// IsStart reports whether the command type starts a machine cycle. Used by
// initiator attribution to decide when a pending-command hint is recorded.
func IsStart(commandType string) bool {
	return commandType == "start" || commandType == "start-with-duration"
}
