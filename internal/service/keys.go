package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/faucetdb/keygate/internal/apikey"
	"github.com/faucetdb/keygate/internal/config"
	"github.com/faucetdb/keygate/internal/model"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrKeyExpired = errors.New("api key expired")
	ErrForbidden  = errors.New("api key does not grant this action")
)

// defaultKeysSetting records that the seed keys were created so deleting them
// later does not bring them back on restart.
const defaultKeysSetting = "default_keys_created"

// maxCreateAttempts bounds id regeneration when an insert collides.
const maxCreateAttempts = 3

// KeyStore is the persistence the key service needs. *config.Store
// satisfies it.
type KeyStore interface {
	CreateKey(ctx context.Context, key *model.Key) error
	GetKey(ctx context.Context, id string) (*model.Key, error)
	ListKeys(ctx context.Context, limit, offset int) ([]model.Key, error)
	CountKeys(ctx context.Context) (int64, error)
	UpdateKey(ctx context.Context, key *model.Key) error
	DeleteKey(ctx context.Context, id string) error
	DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error)
	GetSetting(ctx context.Context, name string) (string, error)
	SetSetting(ctx context.Context, name, value string) error
}

// Principal identifies the caller behind an authorized request.
type Principal struct {
	KeyID  string
	Master bool
}

// KeyService validates key input through an apikey.Builder and persists the
// result.
type KeyService struct {
	store     KeyStore
	builder   *apikey.Builder
	masterKey string
	now       func() time.Time
}

// Option configures a KeyService.
type Option func(*KeyService)

// WithBuilder overrides the builder used to validate input.
func WithBuilder(b *apikey.Builder) Option {
	return func(s *KeyService) { s.builder = b }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *KeyService) { s.now = now }
}

// NewKeyService returns a service backed by store. An empty masterKey means
// no request is treated as the master.
func NewKeyService(store KeyStore, masterKey string, opts ...Option) *KeyService {
	s := &KeyService{
		store:     store,
		masterKey: masterKey,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = apikey.NewBuilder(apikey.WithClock(s.now))
	}
	return s
}

// MasterKeyConfigured reports whether a master key was set.
func (s *KeyService) MasterKeyConfigured() bool {
	return s.masterKey != ""
}

// Create validates input and stores a new key. A colliding id is
// regenerated a bounded number of times.
func (s *KeyService) Create(ctx context.Context, input apikey.Input) (*model.Key, error) {
	for attempt := 1; ; attempt++ {
		key, err := s.builder.Create(input)
		if err != nil {
			return nil, err
		}
		err = s.store.CreateKey(ctx, key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, config.ErrConflict) || attempt >= maxCreateAttempts {
			return nil, err
		}
	}
}

// Get returns a key by id.
func (s *KeyService) Get(ctx context.Context, id string) (*model.Key, error) {
	return s.store.GetKey(ctx, id)
}

// List returns a page of keys and the total number of keys.
func (s *KeyService) List(ctx context.Context, limit, offset int) ([]model.Key, int64, error) {
	keys, err := s.store.ListKeys(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountKeys(ctx)
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

// Update applies input to the stored key. Nothing is written if any field is
// invalid.
func (s *KeyService) Update(ctx context.Context, id string, input apikey.Input) (*model.Key, error) {
	key, err := s.store.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.builder.Update(key, input); err != nil {
		return nil, err
	}
	if err := s.store.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Delete removes a key by id.
func (s *KeyService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteKey(ctx, id)
}

// EnsureDefaultKeys creates the default admin and search keys the first time
// it runs against a store. It returns the keys it created, if any.
func (s *KeyService) EnsureDefaultKeys(ctx context.Context) ([]*model.Key, error) {
	_, err := s.store.GetSetting(ctx, defaultKeysSetting)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("read %s: %w", defaultKeysSetting, err)
	}

	created := []*model.Key{s.builder.DefaultAdmin(), s.builder.DefaultSearch()}
	for _, key := range created {
		if err := s.store.CreateKey(ctx, key); err != nil {
			return nil, fmt.Errorf("create default key: %w", err)
		}
	}
	if err := s.store.SetSetting(ctx, defaultKeysSetting, "true"); err != nil {
		return nil, fmt.Errorf("write %s: %w", defaultKeysSetting, err)
	}
	return created, nil
}

// PurgeExpired deletes every key whose expiration has passed.
func (s *KeyService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredKeys(ctx, s.now().UTC())
}

// Authorize checks that rawKey may perform action on index. An empty index
// skips the index scope check. The master key is allowed everything.
func (s *KeyService) Authorize(ctx context.Context, rawKey string, action model.Action, index string) (*Principal, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	if s.masterKey != "" && subtle.ConstantTimeCompare([]byte(rawKey), []byte(s.masterKey)) == 1 {
		return &Principal{Master: true}, nil
	}
	if !apikey.ValidID(rawKey) {
		return nil, ErrInvalidKey
	}

	key, err := s.store.GetKey(ctx, rawKey)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if key.Expired(s.now()) {
		return nil, ErrKeyExpired
	}
	if !key.AllowsAction(action) {
		return nil, ErrForbidden
	}
	if index != "" && !key.AllowsIndex(index) {
		return nil, ErrForbidden
	}
	return &Principal{KeyID: key.ID}, nil
}
