package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-portal/pkg/logger"
)

type ReconcilerConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	// AttemptTimeout bounds one retry call.
	AttemptTimeout time.Duration
	// Gauge, when set, follows the number of tracked completions.
	Gauge prometheus.Gauge
}

// Reconciler retries appointment completions for consultations that were
// saved while the completion call failed. Wizards register a retry with
// Track and withdraw it with Done once the appointment is completed.
type Reconciler struct {
	config ReconcilerConfig
	logger *logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingCompletion
}

type pendingCompletion struct {
	retry    func(ctx context.Context) error
	attempts int
	since    time.Time
	lastErr  string
	running  bool
}

// Pending describes one completion still waiting for a retry.
type Pending struct {
	AppointmentID string    `json:"appointmentId"`
	Attempts      int       `json:"attempts"`
	Since         time.Time `json:"since"`
	LastError     string    `json:"lastError,omitempty"`
}

func NewReconciler(config ReconcilerConfig, log *logger.Logger) *Reconciler {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		panic("MaxRetries must be greater than 0")
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		config:  config,
		logger:  log,
		now:     time.Now,
		pending: make(map[string]*pendingCompletion),
	}
}

// Track registers retry under key, replacing any earlier registration.
func (r *Reconciler) Track(key string, retry func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempts := 0
	since := r.now()
	if prev, ok := r.pending[key]; ok {
		attempts, since = prev.attempts, prev.since
	}
	r.pending[key] = &pendingCompletion{retry: retry, attempts: attempts, since: since}
	r.report()
	r.logger.Warn("appointment completion pending", "appointment", key)
}

func (r *Reconciler) Done(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
	r.report()
}

// report must be called with mu held.
func (r *Reconciler) report() {
	if r.config.Gauge != nil {
		r.config.Gauge.Set(float64(len(r.pending)))
	}
}

// Pending lists tracked completions, oldest first.
func (r *Reconciler) Pending() []Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pending, 0, len(r.pending))
	for key, p := range r.pending {
		out = append(out, Pending{AppointmentID: key, Attempts: p.attempts, Since: p.since, LastError: p.lastErr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("Starting completion reconciler")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down completion reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce gives every idle pending completion one attempt and returns how
// many succeeded. Retries run without the lock held, since a successful
// retry calls Done.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	r.mu.Lock()
	batch := make(map[string]*pendingCompletion, len(r.pending))
	for key, p := range r.pending {
		if p.running {
			continue
		}
		p.running = true
		batch[key] = p
	}
	r.mu.Unlock()

	succeeded := 0
	for key, p := range batch {
		if ctx.Err() != nil {
			r.release(batch)
			return succeeded
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
		err := p.retry(attemptCtx)
		cancel()

		r.mu.Lock()
		p.running = false
		current, tracked := r.pending[key]
		switch {
		case err == nil:
			if tracked && current == p {
				delete(r.pending, key)
			}
			succeeded++
			r.logger.Info("appointment completion reconciled", "appointment", key, "attempts", p.attempts+1)
		case !tracked || current != p:
			// withdrawn or replaced while the attempt ran
		default:
			p.attempts++
			p.lastErr = err.Error()
			if p.attempts >= r.config.MaxRetries {
				delete(r.pending, key)
				r.logger.Error(err, "giving up on appointment completion", "appointment", key, "attempts", p.attempts)
			} else {
				r.logger.Warn("appointment completion retry failed", "appointment", key, "attempts", p.attempts, "error", err.Error())
			}
		}
		r.report()
		r.mu.Unlock()
		delete(batch, key)
	}
	return succeeded
}

func (r *Reconciler) release(batch map[string]*pendingCompletion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range batch {
		p.running = false
	}
}
