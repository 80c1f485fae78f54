package integrity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkozlov/sentryvault/internal/common"
	"github.com/pkozlov/sentryvault/internal/cryptox"
	"github.com/pkozlov/sentryvault/internal/logging"
)

// Responder handles the violation batch of one tick. Implementations must be
// total over threat levels and must not panic their failures past the tick;
// the monitor additionally shields itself against panics.
type Responder interface {
	Respond(ctx context.Context, level ThreatLevel, records []Record)
}

// Config holds monitor settings.
type Config struct {
	// Root is the directory against which resource names are resolved.
	Root string

	// Interval is the baseline period between ticks.
	Interval time.Duration

	// OfflineBackoff is the delay before the next tick after an errored one.
	// Zero means 2×Interval.
	OfflineBackoff time.Duration

	// MinInterval bounds how far responders may tighten the period.
	// Zero means Interval/4.
	MinInterval time.Duration
}

// Monitor periodically re-hashes registered resources, compares them against
// the registry and drives the threat state machine. Exactly one tick runs at
// a time; the next one is scheduled only after the previous completed or
// errored out.
type Monitor struct {
	cfg       Config
	registry  *Registry
	responder Responder
	log       logging.Logger

	mu          sync.RWMutex
	status      Status
	threat      ThreatLevel
	latched     bool
	interval    time.Duration
	subscribers map[int]chan StateChange
	nextSubID   int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMonitor(cfg Config, registry *Registry, responder Responder, log logging.Logger) *Monitor {
	if cfg.OfflineBackoff <= 0 {
		cfg.OfflineBackoff = 2 * cfg.Interval
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = cfg.Interval / 4
	}
	return &Monitor{
		cfg:         cfg,
		registry:    registry,
		responder:   responder,
		log:         log.With("component", "integrity"),
		status:      StatusMonitoring,
		interval:    cfg.Interval,
		subscribers: make(map[int]chan StateChange),
	}
}

// Initialize starts the periodic verification task. It fails if the monitor
// is already running.
func (m *Monitor) Initialize(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return common.ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.setState(StatusMonitoring, ThreatNone)

	m.log.Info(ctx, "integrity monitoring started",
		"resources", m.registry.Len(), "interval", m.cfg.Interval)

	go m.loop(loopCtx)
	return nil
}

// Shutdown cancels the periodic task, waits for the running tick to finish
// and forces the status to offline. It is idempotent.
func (m *Monitor) Shutdown() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		m.setState(StatusOffline, m.ThreatLevel())
		return
	}

	m.cancel()
	<-m.done
	m.running = false
	m.setState(StatusOffline, m.ThreatLevel())
}

// Status returns the current monitor status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ThreatLevel returns the current threat level.
func (m *Monitor) ThreatLevel() ThreatLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threat
}

// Acknowledge clears a latched compromise after an operator has reviewed it.
// The next clean tick may then report secure again.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	m.latched = false
	shouldReset := m.status == StatusCompromised
	m.mu.Unlock()

	if shouldReset {
		m.setState(StatusMonitoring, ThreatNone)
	}
}

// TightenInterval halves the period between ticks, bounded by MinInterval.
// It is invoked by violation responses that escalate monitoring frequency.
func (m *Monitor) TightenInterval() {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.interval / 2
	if next < m.cfg.MinInterval {
		next = m.cfg.MinInterval
	}
	m.interval = next
}

// Subscribe registers a state-change listener. The returned channel is
// buffered; a slow consumer misses intermediate states instead of blocking
// the monitor. The cancel function removes the subscription.
func (m *Monitor) Subscribe() (<-chan StateChange, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan StateChange, 16)
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(m.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := m.runTick(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}
		timer.Reset(delay)
	}
}

// runTick executes one verification pass and returns the delay until the
// next tick. Hash computation happens-before the status update, which
// happens-before response dispatch.
func (m *Monitor) runTick(ctx context.Context) time.Duration {
	records, err := m.scan(ctx)
	if err != nil {
		m.log.Error(ctx, "integrity tick failed", "error", err)
		m.setState(StatusOffline, m.ThreatLevel())
		return m.cfg.OfflineBackoff
	}

	if len(records) > 0 {
		level := maxSeverity(records)
		m.mu.Lock()
		m.latched = true
		m.mu.Unlock()
		m.setState(StatusCompromised, level)

		m.log.Warn(ctx, "integrity violations detected",
			"count", len(records), "threat_level", level.String())
		for _, rec := range records {
			m.log.Warn(ctx, "integrity violation",
				"id", rec.ID,
				"resource", rec.Resource,
				"expected", rec.ExpectedHash,
				"actual", rec.ActualHash,
				"severity", rec.Severity.String())
		}

		m.dispatch(ctx, level, records)
		return m.currentInterval()
	}

	m.mu.RLock()
	latched := m.latched
	m.mu.RUnlock()

	if latched {
		// A transient clean hash does not undo a prior unauthorized
		// modification; stay compromised until acknowledged.
		m.log.Debug(ctx, "clean tick while compromise unacknowledged")
	} else {
		m.setState(StatusSecure, ThreatNone)
	}
	return m.currentInterval()
}

// scan re-hashes every registered resource present on disk and returns a
// record per mismatch. Resources absent from disk are skipped.
func (m *Monitor) scan(ctx context.Context) ([]Record, error) {
	var records []Record

	for _, name := range m.registry.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expected, severity, ok := m.registry.Expected(name)
		if !ok {
			continue
		}

		actual, err := m.hashResource(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", name, err)
		}

		if actual != expected {
			records = append(records, Record{
				ID:           uuid.NewString(),
				Resource:     name,
				ExpectedHash: expected,
				ActualHash:   actual,
				Timestamp:    time.Now(),
				Severity:     severity,
			})
		}
	}

	return records, nil
}

func (m *Monitor) hashResource(name string) (string, error) {
	f, err := os.Open(filepath.Join(m.cfg.Root, name))
	if err != nil {
		return "", err
	}
	defer f.Close()
	return cryptox.HashReader(f)
}

// dispatch invokes the responder, swallowing any panic so that a failing
// response can never take down the monitor loop.
func (m *Monitor) dispatch(ctx context.Context, level ThreatLevel, records []Record) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(ctx, "violation responder panicked", "panic", r)
		}
	}()
	m.responder.Respond(ctx, level, records)
}

func (m *Monitor) currentInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

func (m *Monitor) setState(status Status, threat ThreatLevel) {
	m.mu.Lock()
	changed := m.status != status || m.threat != threat
	m.status = status
	m.threat = threat
	var subs []chan StateChange
	if changed {
		for _, ch := range m.subscribers {
			subs = append(subs, ch)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	change := StateChange{Status: status, ThreatLevel: threat, At: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func maxSeverity(records []Record) ThreatLevel {
	level := ThreatNone
	for _, rec := range records {
		if rec.Severity > level {
			level = rec.Severity
		}
	}
	return level
}
