package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the verdict applied to a packet.
type Action uint8

const (
	ActionAccept Action = iota
	ActionLog
	ActionAlert
	ActionDrop
)

type actionInfo struct {
	name     string
	severity int
	symbol   string
}

var actions = map[Action]actionInfo{
	ActionAccept: {"ACCEPT", 0, "✓"},
	ActionLog:    {"LOG", 3, "✎"},
	ActionAlert:  {"ALERT", 7, "⚠"},
	ActionDrop:   {"DROP", 10, "✗"},
}

// AllActions lists actions in ascending severity.
var AllActions = []Action{ActionAccept, ActionLog, ActionAlert, ActionDrop}

func (a Action) String() string {
	if info, ok := actions[a]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Severity returns the fixed severity of the action (ACCEPT=0 .. DROP=10).
func (a Action) Severity() int {
	return actions[a].severity
}

// Symbol returns the display symbol.
func (a Action) Symbol() string {
	return actions[a].symbol
}

// Blocking reports whether the action stops the packet.
func (a Action) Blocking() bool {
	return a == ActionDrop
}

// ParseAction resolves an action by name, case-insensitively.
func ParseAction(s string) (Action, error) {
	for a, info := range actions {
		if strings.EqualFold(info.name, s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
