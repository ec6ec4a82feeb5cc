package config

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Hub holds the active configuration snapshot and fans reconfiguration
// events out to subscribers. Readers load the current snapshot with a
// single atomic load; they never block on a reconfigure in progress.
type Hub struct {
	current     atomic.Pointer[Config]
	logger      *zap.Logger
	mu          sync.Mutex
	subscribers []func(*Config)
}

// NewHub creates a hub with the given initial configuration.
func NewHub(cfg *Config, logger *zap.Logger) *Hub {
	if cfg == nil {
		cfg = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{logger: logger}
	h.current.Store(cfg)
	return h
}

// Current returns the active configuration snapshot.
func (h *Hub) Current() *Config {
	return h.current.Load()
}

// OnReconfigure registers fn to run after every configuration swap.
// The callback receives the new snapshot.
func (h *Hub) OnReconfigure(fn func(*Config)) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, fn)
	h.mu.Unlock()
}

// Reconfigure swaps in a new snapshot and notifies subscribers on the
// calling goroutine. A panicking subscriber is logged and does not
// prevent the remaining subscribers from running.
func (h *Hub) Reconfigure(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.normalize()
	h.current.Store(cfg)

	h.mu.Lock()
	subs := make([]func(*Config), len(h.subscribers))
	copy(subs, h.subscribers)
	h.mu.Unlock()

	for _, fn := range subs {
		h.notify(fn, cfg)
	}
}

func (h *Hub) notify(fn func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("reconfigure subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(cfg)
}
