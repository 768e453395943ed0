// Package registry tracks the status of analysis runs.
//
// DESIGN: One producer (the run) and any number of readers (status pollers)
// share each entry. The registry map is guarded by its own RWMutex; every
// Run carries a lock of its own so a busy run never blocks lookups of
// another.
//
// LIFECYCLE:
//
//	Start     -> queued, inserted under a fresh uuid
//	Progress  -> processing, percent only moves forward
//	Complete  -> completed, percent 100, result attached
//	Fail      -> failed, error attached
//
// Finished runs become eligible for removal once the retention window has
// passed; a cleanup goroutine purges them until Close is called.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default lifecycle timings.
const (
	DefaultRetention       = 1 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// ErrNotFound is returned for unknown or purged run ids.
var ErrNotFound = errors.New("registry: run not found")

// State is the lifecycle state of a run.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further updates are expected.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Config configures retention.
type Config struct {
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns the default retention settings.
func DefaultConfig() Config {
	return Config{Retention: DefaultRetention, CleanupInterval: DefaultCleanupInterval}
}

// LogLine is one run-scoped log entry.
type LogLine struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Snapshot is a consistent copy of a run's status.
type Snapshot struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
	Logs       []LogLine `json:"logs"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// =============================================================================
// RUN
// =============================================================================

// Run is the mutable status of one analysis run.
type Run struct {
	id     string
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	progress   int
	message    string
	err        string
	result     any
	logs       []LogLine
	startedAt  time.Time
	finishedAt time.Time
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Progress records a progress update. Percent is clamped to [0,100] and
// never moves backwards; updates after a terminal state are ignored.
func (r *Run) Progress(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = StateProcessing
	if percent > r.progress {
		r.progress = percent
	}
	if message != "" {
		r.message = message
		r.appendLocked(message)
	}
}

// Log appends a run-scoped log line and mirrors it to zerolog.
func (r *Run) Log(message string) {
	r.mu.Lock()
	r.appendLocked(message)
	r.mu.Unlock()
}

func (r *Run) appendLocked(message string) {
	r.logs = append(r.logs, LogLine{Seq: len(r.logs), Time: time.Now(), Message: message})
	r.logger.Info().Int("progress", r.progress).Msg(message)
}

// Complete marks the run completed with its result.
func (r *Run) Complete(result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = StateCompleted
	r.progress = 100
	r.result = result
	r.finishedAt = time.Now()
	r.appendLocked("Run completed")
}

// Fail marks the run failed.
func (r *Run) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = StateFailed
	if err != nil {
		r.err = err.Error()
	}
	r.finishedAt = time.Now()
	r.logger.Error().Str("error", r.err).Msg("Run failed")
	r.logs = append(r.logs, LogLine{Seq: len(r.logs), Time: r.finishedAt, Message: "Run failed: " + r.err})
}

// Snapshot returns a copy of the current status.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	logs := make([]LogLine, len(r.logs))
	copy(logs, r.logs)
	return Snapshot{
		ID:         r.id,
		State:      r.state,
		Progress:   r.progress,
		Message:    r.message,
		Error:      r.err,
		Result:     r.result,
		Logs:       logs,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
}

// LogsSince returns log lines with Seq >= seq, for incremental polling.
func (r *Run) LogsSince(seq int) []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= len(r.logs) {
		return nil
	}
	out := make([]LogLine, len(r.logs)-seq)
	copy(out, r.logs[seq:])
	return out
}

func (r *Run) expired(now time.Time, retention time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Terminal() && now.Sub(r.finishedAt) >= retention
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is a concurrent-safe map of runs.
type Registry struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	cfg      Config
	stopChan chan struct{}
	done     chan struct{}
	stopped  bool
	now      func() time.Time
}

// New creates a registry and starts its cleanup goroutine.
func New(cfg Config) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	r := &Registry{
		runs:     make(map[string]*Run),
		cfg:      cfg,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	go r.cleanup()

	return r
}

// Start inserts a new queued run.
func (r *Registry) Start() *Run {
	id := uuid.NewString()
	run := &Run{
		id:        id,
		logger:    log.With().Str("run_id", id).Logger(),
		state:     StateQueued,
		startedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.runs[id] = run
	}
	return run
}

// Get returns the run with the given id.
func (r *Registry) Get(id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run, nil
}

// Snapshot returns the status of the run with the given id.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	run, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return run.Snapshot(), nil
}

// Remove deletes a run regardless of its state.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return ErrNotFound
	}
	delete(r.runs, id)
	return nil
}

// Len returns the number of tracked runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Purge removes finished runs older than the retention window and returns
// how many were removed.
func (r *Registry) Purge() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, run := range r.runs {
		if run.expired(now, r.cfg.Retention) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup goroutine and drops every run.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.stopChan)
	r.runs = make(map[string]*Run)
	r.mu.Unlock()

	<-r.done
	return nil
}

// cleanup periodically purges expired runs.
func (r *Registry) cleanup() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if n := r.Purge(); n > 0 {
				log.Debug().Int("removed", n).Msg("Purged expired runs")
			}
		}
	}
}
