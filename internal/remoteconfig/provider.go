// Package remoteconfig serves runtime-tunable settings from the database.
package remoteconfig

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/repositories"
)

const (
	KeyMessageLengthLimit     = "friendly_msg_length"
	DefaultMessageLengthLimit = 1000
	DefaultTTL                = time.Hour
)

var defaults = map[string]string{
	KeyMessageLengthLimit: strconv.Itoa(DefaultMessageLengthLimit),
}

type entry struct {
	value   string
	fetched time.Time
}

// Provider caches remote values for a TTL and falls back to defaults when a
// key is unset or the database cannot be read.
type Provider struct {
	repo   repositories.ConfigRepository
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

func NewProvider(repo repositories.ConfigRepository, ttl time.Duration, logger zerolog.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]entry),
	}
}

// Get returns the value for key, its default if unset, or "" for unknown keys.
func (p *Provider) Get(ctx context.Context, key string) string {
	p.mu.Lock()
	e, ok := p.cache[key]
	p.mu.Unlock()
	if ok && p.now().Sub(e.fetched) < p.ttl {
		return e.value
	}

	value, err := p.repo.GetValue(ctx, key)
	switch {
	case errors.Is(err, repositories.ErrConfigNotFound):
		value = defaults[key]
	case err != nil:
		p.logger.Warn().Err(err).Str("key", key).Msg("remote config read failed")
		if ok {
			return e.value
		}
		return defaults[key]
	}

	p.mu.Lock()
	p.cache[key] = entry{value: value, fetched: p.now()}
	p.mu.Unlock()
	return value
}

// Set stores value for key and drops the cached copy.
func (p *Provider) Set(ctx context.Context, key, value string) error {
	if err := p.repo.SetValue(ctx, key, value); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.cache, key)
	p.mu.Unlock()
	return nil
}

// MessageLengthLimit reads friendly_msg_length, falling back to the default
// for values that are not positive integers.
func (p *Provider) MessageLengthLimit(ctx context.Context) int {
	raw := p.Get(ctx, KeyMessageLengthLimit)
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		if raw != "" {
			p.logger.Warn().Str("value", raw).Msg("invalid message length limit")
		}
		return DefaultMessageLengthLimit
	}
	return limit
}
