// Package apikey builds and validates API key records from untyped input.
//
// Input arrives as a JSON-like map. A field that is present with a null value
// is distinct from a field that is absent: on update, null clears the field
// while absence keeps the previous value.
package apikey

import (
	"time"

	"github.com/faucetdb/keygate/internal/model"
)

// Recognized input field names.
const (
	FieldDescription = "description"
	FieldActions     = "actions"
	FieldIndexes     = "indexes"
	FieldExpiresAt   = "expiresAt"
)

const (
	defaultAdminDescription  = "Default Admin API Key (Use it for all other operations. Caution! Do not use it on a public frontend)"
	defaultSearchDescription = "Default Search API Key (Use it to search from the frontend)"
)

// Input is untyped key input, typically a decoded JSON object.
type Input map[string]any

// Lookup returns the value for name and whether the key is present at all.
// A present key may hold a nil value.
func (in Input) Lookup(name string) (any, bool) {
	v, ok := in[name]
	return v, ok
}

// Builder creates and updates key records. The zero value is not usable;
// construct one with NewBuilder.
type Builder struct {
	now func() time.Time
	ids *IDGenerator
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source used for timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(g *IDGenerator) Option {
	return func(b *Builder) { b.ids = g }
}

// NewBuilder returns a Builder using the wall clock and an OS-seeded id
// generator unless overridden by opts.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = NewRandomIDGenerator()
	}
	return b
}

// Create validates input and returns a new key with a fresh id. actions,
// indexes and expiresAt must be present (expiresAt may be null). The first
// invalid field is reported.
func (b *Builder) Create(input Input) (*model.Key, error) {
	var description *string
	if raw, ok := input.Lookup(FieldDescription); ok {
		d, err := parseDescription(raw)
		if err != nil {
			return nil, err
		}
		description = d
	}

	rawActions, ok := input.Lookup(FieldActions)
	if !ok {
		return nil, MissingParameter(FieldActions)
	}
	actions, err := parseActions(rawActions)
	if err != nil {
		return nil, err
	}

	rawIndexes, ok := input.Lookup(FieldIndexes)
	if !ok {
		return nil, MissingParameter(FieldIndexes)
	}
	indexes, err := parseIndexes(rawIndexes)
	if err != nil {
		return nil, err
	}

	rawExpiresAt, ok := input.Lookup(FieldExpiresAt)
	if !ok {
		return nil, MissingParameter(FieldExpiresAt)
	}
	expiresAt, err := b.ParseExpiration(rawExpiresAt)
	if err != nil {
		return nil, err
	}

	now := b.timestamp()
	return &model.Key{
		Description: description,
		ID:          b.ids.Generate(),
		Actions:     actions,
		Indexes:     indexes,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Update applies the fields present in input to key. Every present field is
// validated before anything is written, so on error key is left unchanged.
// UpdatedAt is refreshed on success even if input is empty. A nil key
// returns ErrNilKey.
func (b *Builder) Update(key *model.Key, input Input) error {
	if key == nil {
		return ErrNilKey
	}
	next := key.Clone()

	if raw, ok := input.Lookup(FieldDescription); ok {
		d, err := parseDescription(raw)
		if err != nil {
			return err
		}
		next.Description = d
	}

	if raw, ok := input.Lookup(FieldActions); ok {
		actions, err := parseActions(raw)
		if err != nil {
			return err
		}
		next.Actions = actions
	}

	if raw, ok := input.Lookup(FieldIndexes); ok {
		indexes, err := parseIndexes(raw)
		if err != nil {
			return err
		}
		next.Indexes = indexes
	}

	if raw, ok := input.Lookup(FieldExpiresAt); ok {
		expiresAt, err := b.ParseExpiration(raw)
		if err != nil {
			return err
		}
		next.ExpiresAt = expiresAt
	}

	next.ID = key.ID
	next.CreatedAt = key.CreatedAt
	next.UpdatedAt = b.timestamp()
	*key = *next
	return nil
}

// ParseExpiration parses raw against the builder's clock.
func (b *Builder) ParseExpiration(raw any) (*time.Time, error) {
	return ParseExpiration(raw, b.now())
}

// DefaultAdmin returns the seed key granting every action on every index.
func (b *Builder) DefaultAdmin() *model.Key {
	return b.seed(defaultAdminDescription, model.ActionAll)
}

// DefaultSearch returns the seed key granting search on every index.
func (b *Builder) DefaultSearch() *model.Key {
	return b.seed(defaultSearchDescription, model.ActionSearch)
}

func (b *Builder) seed(description string, action model.Action) *model.Key {
	now := b.timestamp()
	return &model.Key{
		Description: &description,
		ID:          b.ids.Generate(),
		Actions:     []model.Action{action},
		Indexes:     []string{model.AllIndexes},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (b *Builder) timestamp() time.Time {
	return b.now().UTC()
}

func parseDescription(raw any) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, invalid(CodeInvalidDescription, FieldDescription, raw)
	}
	return &s, nil
}

func parseActions(raw any) ([]model.Action, error) {
	fail := invalid(CodeInvalidActions, FieldActions, raw)

	switch v := raw.(type) {
	case []model.Action:
		for _, a := range v {
			if !a.Valid() {
				return nil, fail
			}
		}
		return append([]model.Action{}, v...), nil
	case []string:
		out := make([]model.Action, 0, len(v))
		for _, s := range v {
			a, err := model.ParseAction(s)
			if err != nil {
				return nil, fail
			}
			out = append(out, a)
		}
		return out, nil
	case []any:
		out := make([]model.Action, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fail
			}
			a, err := model.ParseAction(s)
			if err != nil {
				return nil, fail
			}
			out = append(out, a)
		}
		return out, nil
	default:
		return nil, fail
	}
}

func parseIndexes(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(CodeInvalidIndexes, FieldIndexes, raw)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalid(CodeInvalidIndexes, FieldIndexes, raw)
	}
}
