package model

import (
	"slices"
	"time"
)

// Key is an API key record. The ID doubles as the secret presented by
// clients; it is generated once at creation and never changes.
type Key struct {
	Description *string    `json:"description,omitempty"`
	ID          string     `json:"id"`
	Actions     []Action   `json:"actions"`
	Indexes     []string   `json:"indexes"`
	ExpiresAt   *time.Time `json:"expiresAt"` // nil means the key never expires
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// AllIndexes is the index scope that matches every index.
const AllIndexes = "*"

// Clone returns a deep copy of the key.
func (k *Key) Clone() *Key {
	c := *k
	if k.Description != nil {
		d := *k.Description
		c.Description = &d
	}
	if k.ExpiresAt != nil {
		e := *k.ExpiresAt
		c.ExpiresAt = &e
	}
	c.Actions = slices.Clone(k.Actions)
	c.Indexes = slices.Clone(k.Indexes)
	return &c
}

// Expired reports whether the key's expiration has passed at now. Keys
// without an expiration never expire.
func (k *Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// AllowsAction reports whether any of the key's actions grants required.
func (k *Key) AllowsAction(required Action) bool {
	for _, a := range k.Actions {
		if a.Grants(required) {
			return true
		}
	}
	return false
}

// AllowsIndex reports whether the key is scoped to the given index.
func (k *Key) AllowsIndex(index string) bool {
	for _, idx := range k.Indexes {
		if idx == AllIndexes || idx == index {
			return true
		}
	}
	return false
}
