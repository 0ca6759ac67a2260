package imap

import (
	"context"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/codewatch/interfaces"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
	"github.com/customeros/codewatch/services/classifier"
	"github.com/customeros/codewatch/services/extractor"
)

const inboxFolder = "INBOX"

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Dial       interfaces.MailboxDialer
	Provider   Provider
	Classifier *classifier.Classifier
	Extractor  *extractor.Extractor
	Log        logger.Logger
	Now        func() time.Time
}

// Session is one authenticated connection for one account. It is driven by a
// single goroutine and is not safe for concurrent use.
type Session struct {
	account models.Account
	deps    SessionDeps
	conn    interfaces.MailboxConn
	// processed holds UIDs already fetched on this connection so recent
	// searches, which are day-granular on the wire, stay cheap.
	processed map[uint32]struct{}
}

func NewSession(account models.Account, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		account:   account,
		deps:      deps,
		processed: make(map[uint32]struct{}),
	}
}

func (s *Session) Account() models.Account {
	return s.account
}

func (s *Session) Connected() bool {
	return s.conn != nil
}

// Connect dials, authenticates and selects the inbox.
func (s *Session) Connect(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.Connect")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)
	tracing.TagAccount(span, s.account.Address)

	if s.conn != nil {
		return nil
	}

	conn, err := s.deps.Dial(ctx, s.account)
	if err != nil {
		err = apperrors.Classify(s.account.Address, "dial", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := conn.Login(s.account.Address, s.account.Credential); err != nil {
		_ = conn.Logout()
		err = apperrors.Classify(s.account.Address, "login", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := conn.Select(inboxFolder); err != nil {
		_ = conn.Logout()
		err = apperrors.Classify(s.account.Address, "select", err)
		tracing.TraceErr(span, err)
		return err
	}

	s.conn = conn
	s.processed = make(map[uint32]struct{})
	s.deps.Log.Infof("[%s] Connected and selected %s", s.account.Masked(), inboxFolder)
	return nil
}

// SearchWindow lists provider messages received in the last daysBack days.
func (s *Session) SearchWindow(ctx context.Context, daysBack int) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.SearchWindow")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("daysBack", daysBack))

	// one extra day so the window covers whole days for every strategy
	since := s.deps.Now().AddDate(0, 0, -(daysBack + 1))
	ids, err := s.search(since, since)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.Int("found", len(ids)))
	return ids, nil
}

// SearchRecent lists provider messages from the last minutesBack minutes that
// this connection has not processed yet. The wire protocol only filters by
// day, so the rest of the narrowing happens locally.
func (s *Session) SearchRecent(ctx context.Context, minutesBack int) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.SearchRecent")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("minutesBack", minutesBack))

	since := s.deps.Now().Add(-time.Duration(minutesBack) * time.Minute)
	// after: is exclusive of the named day
	ids, err := s.search(since, since.AddDate(0, 0, -1))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	fresh := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if _, done := s.processed[id]; !done {
			fresh = append(fresh, id)
		}
	}
	span.LogFields(tracingLog.Int("found", len(ids)), tracingLog.Int("fresh", len(fresh)))
	return fresh, nil
}

func (s *Session) search(since, after time.Time) ([]uint32, error) {
	if s.conn == nil {
		return nil, apperrors.ErrNotConnected
	}

	outcome, err := runSearchChain(s.account.Address, s.conn, searchChain(s.deps.Provider, since, after))
	if err != nil {
		s.dropOnNetworkError(err)
		return nil, err
	}
	if outcome.strategy != "" {
		s.deps.Log.Debugf("[%s] Search via %s found %d messages", s.account.Masked(), outcome.strategy, len(outcome.ids))
	}
	return outcome.ids, nil
}

// WaitForSignal blocks for at most timeout. True means the server reported a
// mailbox change.
func (s *Session) WaitForSignal(ctx context.Context, timeout time.Duration) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.WaitForSignal")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)

	if s.conn == nil {
		return false, apperrors.ErrNotConnected
	}

	signalled, err := s.conn.Idle(timeout)
	if err != nil {
		err = apperrors.Classify(s.account.Address, "idle", err)
		s.drop()
		tracing.TraceErr(span, err)
		return false, err
	}
	span.SetTag("signalled", signalled)
	return signalled, nil
}

// FetchAndParse turns message ids into classified records. Unparseable and
// unclassified messages are skipped; only a transport failure is returned.
func (s *Session) FetchAndParse(ctx context.Context, ids []uint32) ([]models.EmailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.FetchAndParse")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("requested", len(ids)))

	if len(ids) == 0 {
		return nil, nil
	}
	if s.conn == nil {
		return nil, apperrors.ErrNotConnected
	}

	messages, err := s.conn.Fetch(ids)
	if err != nil && apperrors.IsConnectionError(err) {
		err = apperrors.Classify(s.account.Address, "fetch", err)
		s.drop()
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err != nil {
		// partial fetch; keep whatever arrived
		s.deps.Log.Warnf("[%s] Fetch returned an error, continuing with %d messages: %v", s.account.Masked(), len(messages), err)
	}

	records := make([]models.EmailRecord, 0, len(messages))
	for _, msg := range messages {
		record, ok := s.buildRecord(msg)
		if ok {
			records = append(records, record)
		}
	}
	span.LogFields(tracingLog.Int("records", len(records)))
	return records, nil
}

func (s *Session) buildRecord(msg interfaces.RawMessage) (models.EmailRecord, bool) {
	id := strconv.FormatUint(uint64(msg.UID), 10)

	parsed, err := ParseMessage(msg.Body)
	if err != nil {
		parseErr := apperrors.NewParseError(s.account.Address, id, err)
		s.deps.Log.Warnf("[%s] Skipping message: %v", s.account.Masked(), parseErr)
		return models.EmailRecord{}, false
	}
	s.processed[msg.UID] = struct{}{}

	body := parsed.Body()
	category := s.deps.Classifier.Classify(parsed.Subject, body)
	if !category.IsValid() {
		return models.EmailRecord{}, false
	}

	payload := s.deps.Extractor.Extract(body, category)
	if payload == "" {
		s.deps.Log.Infof("[%s] No payload extracted from %s message %s", s.account.Masked(), category, id)
	}

	return models.EmailRecord{
		ID:          id,
		Account:     s.account.Address,
		Subject:     parsed.Subject,
		Sender:      parsed.From,
		Recipient:   parsed.Recipient,
		RawDate:     parsed.RawDate,
		Timestamp:   parsed.Timestamp,
		Category:    category,
		Payload:     payload,
		BodyPreview: parsed.Preview(),
	}, true
}

// MarkRead flags a message as seen. Failures are logged and swallowed.
func (s *Session) MarkRead(ctx context.Context, id string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.MarkRead")
	defer span.Finish()
	tracing.SetDefaultMailboxSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	if s.conn == nil {
		return
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		s.deps.Log.Warnf("[%s] Cannot mark %q as read: %v", s.account.Masked(), id, err)
		return
	}

	if err := s.conn.MarkSeen(uint32(uid)); err != nil {
		tracing.TraceErr(span, err)
		s.deps.Log.Warnf("[%s] Failed to mark %s as read: %v", s.account.Masked(), id, err)
		s.dropOnNetworkError(err)
	}
}

// Disconnect is best-effort and idempotent.
func (s *Session) Disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Logout(); err != nil {
		s.deps.Log.Debugf("[%s] Logout: %v", s.account.Masked(), err)
	}
	s.conn = nil
}

func (s *Session) drop() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Logout()
	s.conn = nil
}

func (s *Session) dropOnNetworkError(err error) {
	if errors.Is(err, apperrors.ErrNetwork) || apperrors.IsConnectionError(err) {
		s.drop()
	}
}
