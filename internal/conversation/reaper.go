package conversation

import (
	"context"
	"time"
)

// ReaperConfig configures the idle session reaper.
type ReaperConfig struct {
	// IdleTimeout is how long a session may go without input.
	// Default: 30 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often sessions are scanned.
	// Default: 1 minute.
	SweepInterval time.Duration
}

// StartReaper launches a goroutine that drops sessions idle for longer than
// cfg.IdleTimeout. Call Stop to shut it down.
func (e *Engine) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	e.reaperStop = make(chan struct{})
	e.reaperDone = make(chan struct{})

	go e.reapLoop(cfg)
	e.logger.Info("conversation: reaper started",
		"idle_timeout", cfg.IdleTimeout,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (e *Engine) Stop() {
	if e.reaperStop != nil {
		close(e.reaperStop)
		<-e.reaperDone
		e.reaperStop = nil
		e.reaperDone = nil
	}
}

func (e *Engine) reapLoop(cfg *ReaperConfig) {
	defer close(e.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.reaperStop:
			return
		case <-ticker.C:
			e.sweep(cfg.IdleTimeout)
		}
	}
}

// sweep drops idle sessions and returns how many were dropped. Finish hooks
// run outside the lock.
func (e *Engine) sweep(idle time.Duration) int {
	now := e.now()

	var expired []*session
	e.mu.Lock()
	for key, s := range e.sessions {
		if now.Sub(s.lastUsed) > idle {
			s.closed.Store(true)
			delete(e.sessions, key)
			expired = append(expired, s)
		}
	}
	e.setActiveLocked()
	e.mu.Unlock()

	for _, s := range expired {
		if e.metrics != nil {
			e.metrics.SessionsExpired.Inc()
		}
		e.finished(context.Background(), s.key, s.id, OutcomeExpired)
	}
	return len(expired)
}
