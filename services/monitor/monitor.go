package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/enum"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
	"github.com/customeros/codewatch/internal/utils"
	"github.com/customeros/codewatch/services/imap"
	"github.com/customeros/codewatch/services/workingset"
)

const resyncQueueSize = 4

// Monitor owns the process-wide monitoring state: the working set, the
// settings, and at most one active run of the loop.
type Monitor struct {
	log        logger.Logger
	deps       imap.SessionDeps
	notifier   interfaces.Notifier
	workingSet *workingset.WorkingSet

	// lifecycle serializes Start, Stop and one-shot checks.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	accounts []models.Account
	settings models.Settings
	current  *run
	last     *imap.Registry
}

type Options struct {
	Accounts []models.Account
	Settings models.Settings
	Session  imap.SessionDeps
	Notifier interfaces.Notifier
}

type run struct {
	id        string
	startedAt time.Time
	registry  *imap.Registry
	ctx       context.Context
	cancel    context.CancelFunc
	stopping  atomic.Bool
	resync    chan resyncRequest
	done      chan struct{}
}

type resyncRequest struct {
	reason string
	reply  chan resyncResult
}

type resyncResult struct {
	added []models.EmailRecord
	err   error
}

func New(log logger.Logger, opts Options) *Monitor {
	if opts.Session.Log == nil {
		opts.Session.Log = log
	}
	if opts.Session.Now == nil {
		opts.Session.Now = time.Now
	}
	accounts := make([]models.Account, len(opts.Accounts))
	copy(accounts, opts.Accounts)

	return &Monitor{
		log:        log,
		deps:       opts.Session,
		notifier:   opts.Notifier,
		workingSet: workingset.New(),
		accounts:   accounts,
		settings:   opts.Settings,
	}
}

// Start launches the loop. It reports false when a run is already active.
// A run that is still draining after Stop is waited for first.
func (m *Monitor) Start(ctx context.Context) (bool, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "Monitor.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	current := m.current
	accounts := len(m.accounts)
	m.mu.RUnlock()

	if current != nil {
		if !current.stopping.Load() {
			span.SetTag("result", "already_active")
			return false, nil
		}
		<-current.done
	}
	if accounts == 0 {
		tracing.TraceErr(span, apperrors.ErrNoAccounts)
		return false, apperrors.ErrNoAccounts
	}

	r := m.newRun()
	m.mu.Lock()
	m.current = r
	m.last = r.registry
	m.mu.Unlock()

	span.SetTag("run.id", r.id)
	m.log.Infof("Monitoring started for %d accounts (run %s)", accounts, r.id)

	go m.loop(r)
	return true, nil
}

// Stop raises the stop flag. The in-flight wait finishes on its own timeout,
// after which every session is closed.
func (m *Monitor) Stop() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil || current.stopping.Load() {
		return false
	}
	current.stopping.Store(true)
	current.cancel()
	m.log.Infof("Stop requested for run %s", current.id)
	return true
}

// Wait blocks until the current run, if any, has closed its sessions.
func (m *Monitor) Wait() {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current != nil {
		<-current.done
	}
}

// Shutdown stops the loop and waits for it, bounded by ctx.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.Stop()
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && !m.current.stopping.Load()
}

// RequestResync asks the active run for a full resync without waiting for it.
// Requests coalesce when one is already queued.
func (m *Monitor) RequestResync(reason string) bool {
	r := m.activeRun()
	if r == nil {
		return false
	}
	select {
	case r.resync <- resyncRequest{reason: reason}:
		return true
	default:
		m.log.Debugf("Resync already queued, dropping request from %s", reason)
		return true
	}
}

// CheckNow runs a full resync and returns the records it found to be new.
// With an active run the loop performs it between accounts; otherwise a
// one-shot pass opens and closes its own sessions.
func (m *Monitor) CheckNow(ctx context.Context) ([]models.EmailRecord, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "Monitor.CheckNow")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	m.lifecycle.Lock()
	if r := m.activeRun(); r != nil {
		m.lifecycle.Unlock()
		added, err := m.checkViaLoop(ctx, r)
		if err != nil {
			tracing.TraceErr(span, err)
		}
		return added, err
	}
	defer m.lifecycle.Unlock()

	if len(m.Accounts()) == 0 {
		return nil, apperrors.ErrNoAccounts
	}

	registry := imap.NewRegistry(m.deps)
	defer registry.CloseAll()
	m.mu.Lock()
	m.last = registry
	m.mu.Unlock()

	ctx = utils.SetRunIDInContext(ctx, uuid.New().String())
	added, err := m.fullResync(ctx, registry, "manual")
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("added", len(added))
	return added, nil
}

func (m *Monitor) checkViaLoop(ctx context.Context, r *run) ([]models.EmailRecord, error) {
	req := resyncRequest{reason: "manual", reply: make(chan resyncResult, 1)}
	select {
	case r.resync <- req:
	case <-r.done:
		return nil, apperrors.ErrMonitorInactive
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.added, res.err
	case <-r.done:
		return nil, apperrors.ErrMonitorInactive
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Monitor) Records(category enum.Category, account string) []models.EmailRecord {
	return m.workingSet.Filter(category, account)
}

func (m *Monitor) Stats() models.RecordStats {
	return m.workingSet.Stats()
}

func (m *Monitor) Settings() models.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings applies a partial update. An invalid result is rejected and
// the previous settings stay in force. The loop picks changes up on its next
// cycle.
func (m *Monitor) UpdateSettings(update models.SettingsUpdate) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := update.ApplyTo(m.settings)
	if err := next.Validate(); err != nil {
		return m.settings, err
	}
	m.settings = next
	m.log.Infof("Settings updated: poll=%ds daysBack=%d autoMarkRead=%t recent=%dm",
		next.PollIntervalSeconds, next.DaysBack, next.AutoMarkRead, next.RecentMinutes)
	return next, nil
}

func (m *Monitor) Accounts() []models.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]models.Account, len(m.accounts))
	copy(accounts, m.accounts)
	return accounts
}

// Status reports every configured account, including those that never
// connected during the latest run.
func (m *Monitor) Status() []models.SessionStatus {
	m.mu.RLock()
	registry := m.last
	accounts := m.accounts
	m.mu.RUnlock()

	var known map[string]models.SessionStatus
	if registry != nil {
		known = registry.Status()
	}

	statuses := make([]models.SessionStatus, 0, len(accounts))
	for _, account := range accounts {
		status, ok := known[account.Address]
		if !ok {
			status = models.SessionStatus{Account: account.Address, State: models.SessionDisconnected}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// RunID returns the id of the active run, or an empty string.
func (m *Monitor) RunID() string {
	if r := m.activeRun(); r != nil {
		return r.id
	}
	return ""
}

func (m *Monitor) activeRun() *run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.stopping.Load() {
		return nil
	}
	return m.current
}

func (m *Monitor) newRun() *run {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{AppSource: "monitor", RunID: id})

	return &run{
		id:        id,
		startedAt: m.deps.Now(),
		registry:  imap.NewRegistry(m.deps),
		ctx:       ctx,
		cancel:    cancel,
		resync:    make(chan resyncRequest, resyncQueueSize),
		done:      make(chan struct{}),
	}
}

func (m *Monitor) finish(r *run) {
	r.registry.CloseAll()
	r.cancel()

	m.mu.Lock()
	if m.current == r {
		m.current = nil
	}
	m.mu.Unlock()

	m.log.Infof("Monitoring stopped (run %s)", r.id)
	close(r.done)
}
