package imap

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
)

// Registry owns at most one live session per account. Sessions are only
// touched by the monitor goroutine; the mutex protects the status view that
// HTTP handlers read.
type Registry struct {
	deps     SessionDeps
	log      logger.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
	statuses map[string]models.SessionStatus
}

func NewRegistry(deps SessionDeps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		deps:     deps,
		log:      deps.Log,
		sessions: make(map[string]*Session),
		statuses: make(map[string]models.SessionStatus),
	}
}

// EnsureOpen returns a live session for the account, creating and
// connecting one if needed. On failure it returns nil and the error.
func (r *Registry) EnsureOpen(ctx context.Context, account models.Account) (*Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Registry.EnsureOpen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.Address)

	r.mu.RLock()
	session, exists := r.sessions[account.Address]
	r.mu.RUnlock()

	if exists && session.Connected() {
		return session, nil
	}

	if !exists {
		session = NewSession(account, r.deps)
	}

	if err := session.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		r.recordFailure(account.Address, err)
		if errors.Is(err, apperrors.ErrAuth) {
			r.log.Errorf("[%s] Authentication rejected, will retry next cycle: %v", account.Masked(), err)
		} else {
			r.log.Warnf("[%s] Connect failed: %v", account.Masked(), err)
		}
		return nil, err
	}

	r.mu.Lock()
	r.sessions[account.Address] = session
	r.statuses[account.Address] = models.SessionStatus{
		Account:     account.Address,
		State:       models.SessionConnected,
		LastChecked: r.deps.Now(),
	}
	r.mu.Unlock()

	return session, nil
}

// HandleFailure discards the account's session after a protocol error. The
// next EnsureOpen rebuilds it.
func (r *Registry) HandleFailure(account models.Account, err error) {
	r.mu.Lock()
	session, exists := r.sessions[account.Address]
	delete(r.sessions, account.Address)
	r.mu.Unlock()

	if exists {
		session.Disconnect()
	}
	r.recordFailure(account.Address, err)
	r.log.Warnf("[%s] Session discarded: %v", account.Masked(), err)
}

// Touch records a successful interaction for the status view.
func (r *Registry) Touch(account models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.statuses[account.Address]
	status.Account = account.Address
	status.State = models.SessionConnected
	status.LastChecked = r.deps.Now()
	status.LastError = ""
	status.Failures = 0
	r.statuses[account.Address] = status
}

// Live returns connected sessions in the given account order.
func (r *Registry) Live(accounts []models.Account) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]*Session, 0, len(accounts))
	for _, account := range accounts {
		if session, ok := r.sessions[account.Address]; ok && session.Connected() {
			live = append(live, session)
		}
	}
	return live
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for address, session := range r.sessions {
		sessions = append(sessions, session)
		delete(r.sessions, address)
		status := r.statuses[address]
		status.State = models.SessionDisconnected
		r.statuses[address] = status
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Disconnect()
		}(session)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * logoutTimeout):
		r.log.Warn("Timed out waiting for sessions to log out")
	}
}

// Status returns a copy of every account's last known state.
func (r *Registry) Status() map[string]models.SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]models.SessionStatus, len(r.statuses))
	for address, status := range r.statuses {
		result[address] = status
	}
	return result
}

func (r *Registry) recordFailure(address string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.statuses[address]
	status.Account = address
	status.State = models.SessionDisconnected
	if errors.Is(err, apperrors.ErrAuth) {
		status.State = models.SessionAuthFailed
	}
	if err != nil {
		status.LastError = err.Error()
	}
	status.LastChecked = r.deps.Now()
	status.Failures++
	r.statuses[address] = status
}
