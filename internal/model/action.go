package model

import (
	"encoding/json"
	"fmt"
)

// Action is a capability granted to an API key. The set of actions is closed;
// unknown tags are rejected when decoding.
type Action string

const (
	// ActionAll grants every operation.
	ActionAll Action = "*"

	ActionSearch Action = "search"

	// Document actions
	ActionDocumentsAdd    Action = "documents.add"
	ActionDocumentsGet    Action = "documents.get"
	ActionDocumentsDelete Action = "documents.delete"

	// Index actions
	ActionIndexesCreate Action = "indexes.create"
	ActionIndexesGet    Action = "indexes.get"
	ActionIndexesUpdate Action = "indexes.update"
	ActionIndexesDelete Action = "indexes.delete"

	ActionTasksGet       Action = "tasks.get"
	ActionSettingsGet    Action = "settings.get"
	ActionSettingsUpdate Action = "settings.update"
	ActionStatsGet       Action = "stats.get"
	ActionDumpsCreate    Action = "dumps.create"
	ActionDumpsGet       Action = "dumps.get"
	ActionVersion        Action = "version"

	// Key management actions
	ActionKeysGet    Action = "keys.get"
	ActionKeysCreate Action = "keys.create"
	ActionKeysUpdate Action = "keys.update"
	ActionKeysDelete Action = "keys.delete"
)

// AllActions returns every valid action in declaration order.
func AllActions() []Action {
	return []Action{
		ActionAll,
		ActionSearch,
		ActionDocumentsAdd,
		ActionDocumentsGet,
		ActionDocumentsDelete,
		ActionIndexesCreate,
		ActionIndexesGet,
		ActionIndexesUpdate,
		ActionIndexesDelete,
		ActionTasksGet,
		ActionSettingsGet,
		ActionSettingsUpdate,
		ActionStatsGet,
		ActionDumpsCreate,
		ActionDumpsGet,
		ActionVersion,
		ActionKeysGet,
		ActionKeysCreate,
		ActionKeysUpdate,
		ActionKeysDelete,
	}
}

var validActions = func() map[Action]bool {
	m := make(map[Action]bool)
	for _, a := range AllActions() {
		m[a] = true
	}
	return m
}()

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return validActions[a]
}

// Grants reports whether holding a permits the required action.
// The wildcard action grants everything.
func (a Action) Grants(required Action) bool {
	return a == ActionAll || a == required
}

// ParseAction converts a string into an Action, rejecting unknown tags.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// UnmarshalJSON decodes a JSON string into a known Action.
func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
