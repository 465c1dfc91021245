package connectivity

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchPaths are rewritten by most network managers on link changes.
var DefaultWatchPaths = []string{"/etc/resolv.conf"}

// Monitor probes on an interval and emits a state only after it has held
// for the settle window. The first observed state is emitted immediately.
type Monitor struct {
	prober     Prober
	interval   time.Duration
	settle     time.Duration
	watchPaths []string
	logger     *slog.Logger
	out        chan bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithSettle sets how long a new state must hold before it is emitted.
func WithSettle(d time.Duration) Option {
	return func(m *Monitor) { m.settle = d }
}

// WithWatchPaths sets files whose changes trigger an immediate probe.
func WithWatchPaths(paths ...string) Option {
	return func(m *Monitor) { m.watchPaths = paths }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor around p.
func NewMonitor(p Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   p,
		interval: 5 * time.Second,
		settle:   3 * time.Second,
		logger:   slog.Default(),
		out:      make(chan bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Transitions delivers debounced states. It is closed when Run returns.
func (m *Monitor) Transitions() <-chan bool {
	return m.out
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	hints := m.watch(ctx)

	interval := m.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stable := m.prober.Probe(ctx)
	if !m.emit(ctx, stable) {
		return nil
	}
	m.logger.Info("connectivity: initial state", slog.Bool("online", stable))

	var (
		pending  bool
		settleC  <-chan time.Time
		settleTm *time.Timer
	)
	stopSettle := func() {
		if settleTm != nil {
			settleTm.Stop()
		}
		settleC = nil
		pending = false
	}
	defer stopSettle()

	observe := func(state bool) bool {
		if state == stable {
			if pending {
				m.logger.Debug("connectivity: flap ignored", slog.Bool("online", state))
			}
			stopSettle()
			return true
		}
		if pending {
			return true
		}
		if m.settle <= 0 {
			return m.commit(ctx, &stable, state)
		}
		pending = true
		settleTm = time.NewTimer(m.settle)
		settleC = settleTm.C
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !observe(m.prober.Probe(ctx)) {
				return nil
			}
		case <-hints:
			m.logger.Debug("connectivity: network config changed")
			if !observe(m.prober.Probe(ctx)) {
				return nil
			}
		case <-settleC:
			stopSettle()
			state := m.prober.Probe(ctx)
			if state == stable {
				continue
			}
			if !m.commit(ctx, &stable, state) {
				return nil
			}
		}
	}
}

func (m *Monitor) commit(ctx context.Context, stable *bool, state bool) bool {
	if !m.emit(ctx, state) {
		return false
	}
	*stable = state
	m.logger.Info("connectivity: transition", slog.Bool("online", state))
	return true
}

func (m *Monitor) emit(ctx context.Context, state bool) bool {
	select {
	case m.out <- state:
		return true
	case <-ctx.Done():
		return false
	}
}

// watch starts an fsnotify watcher on the directories of the configured
// paths and forwards matching events as hints. Failures only disable hints.
func (m *Monitor) watch(ctx context.Context) <-chan struct{} {
	if len(m.watchPaths) == 0 {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("connectivity: watcher unavailable", slog.String("error", err.Error()))
		return nil
	}
	names := make(map[string]bool, len(m.watchPaths))
	added := 0
	for _, p := range m.watchPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if err := w.Add(filepath.Dir(abs)); err != nil {
			m.logger.Warn("connectivity: watch failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		names[abs] = true
		added++
	}
	if added == 0 {
		w.Close()
		return nil
	}

	hints := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !names[filepath.Clean(ev.Name)] {
					continue
				}
				select {
				case hints <- struct{}{}:
				default:
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn("connectivity: watcher error", slog.String("error", werr.Error()))
			}
		}
	}()
	return hints
}
