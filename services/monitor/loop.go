package monitor

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
	"github.com/customeros/codewatch/services/imap"
)

func (m *Monitor) loop(r *run) {
	defer m.finish(r)
	defer tracing.RecoverAndLogToJaeger(m.log)

	if _, err := m.fullResync(r.ctx, r.registry, "startup"); err != nil {
		m.log.Errorf("Initial resync failed: %v", err)
	}

	for !r.stopping.Load() {
		m.cycle(r)
	}
	m.log.Debugf("Run %s leaving loop after %s", r.id, m.deps.Now().Sub(r.startedAt).Round(time.Second))
}

// cycle opens missing sessions, then gives each live session one bounded
// wait. Accounts are served sequentially.
func (m *Monitor) cycle(r *run) {
	settings := m.Settings()
	accounts := m.Accounts()

	for _, account := range accounts {
		if r.stopping.Load() {
			return
		}
		// failures are recorded by the registry and retried next cycle
		_, _ = r.registry.EnsureOpen(r.ctx, account)
	}

	live := r.registry.Live(accounts)
	if len(live) == 0 {
		m.sleep(r, settings.PollInterval())
		return
	}

	for _, session := range live {
		if r.stopping.Load() {
			return
		}
		m.watch(r, session, settings)
		m.drainResync(r)
	}
}

// watch waits for a push signal on one session and merges whatever the
// recent window turns up.
func (m *Monitor) watch(r *run, session *imap.Session, settings models.Settings) {
	account := session.Account()
	span, ctx := opentracing.StartSpanFromContext(r.ctx, "Monitor.watch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.Address)

	signalled, err := session.WaitForSignal(ctx, settings.PollInterval())
	if err != nil {
		tracing.TraceErr(span, err)
		r.registry.HandleFailure(account, err)
		return
	}
	r.registry.Touch(account)
	if !signalled {
		return
	}

	ids, err := session.SearchRecent(ctx, settings.RecentMinutes)
	if err != nil {
		if errors.Is(err, apperrors.ErrSearchFallbackExhausted) {
			m.log.Warnf("[%s] No search strategy succeeded, skipping this cycle: %v", account.Masked(), err)
			return
		}
		tracing.TraceErr(span, err)
		r.registry.HandleFailure(account, err)
		return
	}
	if len(ids) == 0 {
		return
	}

	records, err := session.FetchAndParse(ctx, ids)
	if err != nil {
		tracing.TraceErr(span, err)
		r.registry.HandleFailure(account, err)
		return
	}

	added := m.workingSet.MergeNew(records)
	span.LogFields(tracingLog.Int("fetched", len(records)), tracingLog.Int("added", len(added)))
	if len(added) == 0 {
		return
	}

	m.log.Infof("[%s] %d new records", account.Masked(), len(added))
	m.publish(ctx, added)
	if settings.AutoMarkRead {
		markRead(ctx, session, added)
	}
}

// sleep is the backstop when no session is live. A resync request wakes it.
func (m *Monitor) sleep(r *run, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-r.ctx.Done():
	case req := <-r.resync:
		m.serveResync(r, req)
	}
}

func (m *Monitor) drainResync(r *run) {
	for {
		select {
		case req := <-r.resync:
			m.serveResync(r, req)
		default:
			return
		}
	}
}

func (m *Monitor) serveResync(r *run, req resyncRequest) {
	added, err := m.fullResync(r.ctx, r.registry, req.reason)
	if err != nil {
		m.log.Errorf("Resync (%s) failed: %v", req.reason, err)
	}
	if req.reply != nil {
		req.reply <- resyncResult{added: added, err: err}
	}
}

// publish emits new_records followed by set_updated. Notification failures
// are logged; the working set is already updated.
func (m *Monitor) publish(ctx context.Context, added []models.EmailRecord) {
	if m.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if len(added) > 0 {
		if err := m.notifier.NotifyNewRecords(ctx, added); err != nil {
			m.log.Warnf("Failed to notify %d new records: %v", len(added), err)
		}
	}
	if err := m.notifier.NotifySetUpdated(ctx, m.workingSet.Len(), m.deps.Now()); err != nil {
		m.log.Warnf("Failed to notify set update: %v", err)
	}
}

func markRead(ctx context.Context, session *imap.Session, records []models.EmailRecord) {
	for _, record := range records {
		if record.Account == session.Account().Address {
			session.MarkRead(ctx, record.ID)
		}
	}
}
