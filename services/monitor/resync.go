package monitor

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/codewatch/internal/enum"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
	"github.com/customeros/codewatch/services/imap"
)

// fullResync scans the full day window of every account and installs the
// result as the new baseline. Accounts that cannot be scanned keep their
// previous records. If no account could be scanned the baseline is left
// untouched.
func (m *Monitor) fullResync(ctx context.Context, registry *imap.Registry, reason string) ([]models.EmailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Monitor.fullResync")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("reason", reason)

	settings := m.Settings()
	accounts := m.Accounts()

	var collected []models.EmailRecord
	sessions := make(map[string]*imap.Session, len(accounts))
	scanned := 0

	for _, account := range accounts {
		session, records, err := m.scanAccount(ctx, registry, account, settings.DaysBack)
		if err != nil {
			m.log.Warnf("[%s] Resync skipped, keeping previous records: %v", account.Masked(), err)
			collected = append(collected, m.workingSet.Filter(enum.CategoryNone, account.Address)...)
			continue
		}
		scanned++
		sessions[account.Address] = session
		collected = append(collected, records...)
	}

	if scanned == 0 {
		err := errors.Wrapf(apperrors.ErrResyncFailed, "none of %d accounts could be scanned", len(accounts))
		tracing.TraceErr(span, err)
		return nil, err
	}

	added := m.workingSet.ReplaceWith(collected)
	span.LogFields(
		tracingLog.Int("accounts.scanned", scanned),
		tracingLog.Int("records", len(collected)),
		tracingLog.Int("added", len(added)),
	)
	m.log.Infof("Resync (%s) complete: %d/%d accounts, %d records, %d new",
		reason, scanned, len(accounts), m.workingSet.Len(), len(added))

	m.publish(ctx, added)

	if settings.AutoMarkRead {
		for _, session := range sessions {
			markRead(ctx, session, added)
		}
	}
	return added, nil
}

func (m *Monitor) scanAccount(ctx context.Context, registry *imap.Registry, account models.Account, daysBack int) (*imap.Session, []models.EmailRecord, error) {
	session, err := registry.EnsureOpen(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	ids, err := session.SearchWindow(ctx, daysBack)
	if err != nil {
		if !errors.Is(err, apperrors.ErrSearchFallbackExhausted) {
			registry.HandleFailure(account, err)
		}
		return nil, nil, err
	}

	records, err := session.FetchAndParse(ctx, ids)
	if err != nil {
		registry.HandleFailure(account, err)
		return nil, nil, err
	}

	registry.Touch(account)
	return session, records, nil
}
