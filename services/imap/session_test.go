package imap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/enum"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/services/classifier"
	"github.com/customeros/codewatch/services/extractor"
	"github.com/customeros/codewatch/services/imap/imaptest"
)

var (
	testNow     = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	testAccount = models.Account{Address: "watcher@gmail.com", Credential: "app-password"}
)

func testDeps(dialer *imaptest.Dialer) SessionDeps {
	return SessionDeps{
		Dial:       dialer.Dial,
		Provider:   Provider{Domain: "netflix.com", Name: "Netflix"},
		Classifier: classifier.New(),
		Extractor:  extractor.New("netflix.com"),
		Log:        logger.NewNopLogger(),
		Now:        func() time.Time { return testNow },
	}
}

func interfacesRaw(uid uint32, body []byte) interfaces.RawMessage {
	return interfaces.RawMessage{UID: uid, Body: body}
}

func connectedSession(t *testing.T, conn *imaptest.Conn) *Session {
	t.Helper()
	dialer := imaptest.NewDialer()
	dialer.Set(testAccount.Address, conn)
	s := NewSession(testAccount, testDeps(dialer))
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestSession_Connect(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := connectedSession(t, imaptest.NewConn())
		assert.True(t, s.Connected())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		conn := imaptest.NewConn()
		conn.LoginErr = apperrors.NewAuthError(testAccount.Address, errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials"))
		dialer := imaptest.NewDialer()
		dialer.Set(testAccount.Address, conn)
		s := NewSession(testAccount, testDeps(dialer))

		err := s.Connect(context.Background())

		assert.True(t, errors.Is(err, apperrors.ErrAuth))
		assert.False(t, s.Connected())
		assert.Equal(t, 1, conn.LogoutCalls())
	})

	t.Run("unreachable server", func(t *testing.T) {
		dialer := imaptest.NewDialer()
		s := NewSession(testAccount, testDeps(dialer))

		err := s.Connect(context.Background())

		assert.True(t, errors.Is(err, apperrors.ErrNetwork))
		assert.False(t, s.Connected())
	})
}

func TestSession_SearchWindow_FallsBackInOrder(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawErr = errors.New("BAD Unknown search key X-GM-RAW")
	conn.FromIDs = []uint32{3, 4}
	s := connectedSession(t, conn)

	ids, err := s.SearchWindow(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 4}, ids)
	assert.Equal(t, []string{"from:netflix.com after:2026/01/07"}, conn.RawQueries())
	criteria := conn.Criteria()
	require.Len(t, criteria, 1)
	assert.Equal(t, "netflix.com", criteria[0].From)
	assert.Equal(t, time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC), criteria[0].Since)
}

func TestSession_SearchWindow_SameDayBoundForEveryStrategy(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawErr = errors.New("BAD Unknown search key X-GM-RAW")
	conn.FromErr = errors.New("NO search refused")
	conn.SubjIDs = []uint32{5}
	s := connectedSession(t, conn)

	ids, err := s.SearchWindow(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, ids)
	assert.Equal(t, []string{"from:netflix.com after:2026/01/07"}, conn.RawQueries())
	criteria := conn.Criteria()
	require.Len(t, criteria, 2)
	for _, c := range criteria {
		assert.Equal(t, "2026-01-07", c.Since.Format("2006-01-02"))
	}
}

func TestSession_SearchRecent_RawQueryStepsBackADay(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawErr = errors.New("BAD Unknown search key X-GM-RAW")
	s := connectedSession(t, conn)

	_, err := s.SearchRecent(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"from:netflix.com after:2026/01/14"}, conn.RawQueries())
	criteria := conn.Criteria()
	require.NotEmpty(t, criteria)
	assert.Equal(t, testNow.Add(-10*time.Minute), criteria[0].Since)
}

func TestSession_SearchWindow_EmptyResultsTryNextStrategy(t *testing.T) {
	conn := imaptest.NewConn()
	conn.SubjIDs = []uint32{9}
	s := connectedSession(t, conn)

	ids, err := s.SearchWindow(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)
	criteria := conn.Criteria()
	require.Len(t, criteria, 2)
	assert.Equal(t, "Netflix", criteria[1].Subject)
}

func TestSession_SearchWindow_AllEmptyIsNotAnError(t *testing.T) {
	s := connectedSession(t, imaptest.NewConn())

	ids, err := s.SearchWindow(context.Background(), 7)

	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSession_SearchWindow_Exhausted(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawErr = errors.New("BAD unsupported")
	conn.FromErr = errors.New("NO search refused")
	conn.SubjErr = errors.New("NO search refused")
	s := connectedSession(t, conn)

	_, err := s.SearchWindow(context.Background(), 7)

	assert.True(t, errors.Is(err, apperrors.ErrSearchFallbackExhausted))
	assert.True(t, s.Connected())
}

func TestSession_SearchWindow_TransportFailureDropsSession(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawErr = errors.New("write tcp: broken pipe")
	s := connectedSession(t, conn)

	_, err := s.SearchWindow(context.Background(), 7)

	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.False(t, s.Connected())
}

func TestSession_SearchRecent_SkipsProcessedMessages(t *testing.T) {
	conn := imaptest.NewConn()
	conn.RawIDs = []uint32{1, 2}
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{UID: 1, Subject: "Your Netflix sign-in code", Text: "Enter this code to sign in: 8423"}))
	s := connectedSession(t, conn)

	_, err := s.FetchAndParse(context.Background(), []uint32{1})
	require.NoError(t, err)

	ids, err := s.SearchRecent(context.Background(), 15)

	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, ids)
}

func TestSession_FetchAndParse(t *testing.T) {
	conn := imaptest.NewConn()
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{
		UID:     1,
		Subject: "Your Netflix sign-in code",
		To:      "Watcher <watcher@gmail.com>",
		Text:    "Enter this code to sign in: 8423",
	}))
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{
		UID:     2,
		Subject: "New arrivals this week",
		Text:    "Watch the latest releases.",
	}))
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{UID: 3}))
	conn.AddMessage(interfacesRaw(4, nil))
	s := connectedSession(t, conn)

	records, err := s.FetchAndParse(context.Background(), []uint32{1, 2, 3, 4})

	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "1", r.ID)
	assert.Equal(t, testAccount.Address, r.Account)
	assert.Equal(t, enum.CategorySignInCode, r.Category)
	assert.Equal(t, "8423", r.Payload)
	assert.Equal(t, "Watcher <watcher@gmail.com>", r.Recipient)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC).Unix(), r.Timestamp)
	assert.Contains(t, r.Sender, "netflix.com")
	assert.Equal(t, "Enter this code to sign in: 8423", r.BodyPreview)
}

func TestSession_FetchAndParse_HouseholdPrefersHTML(t *testing.T) {
	conn := imaptest.NewConn()
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{
		UID:     5,
		Subject: "Update your Netflix household",
		Text:    "Confirm the update from your Netflix account.",
		HTML: `<html><body><a href="https://www.netflix.com/account/update-primary-location?nftoken=t1">Yes, this was me</a>` +
			`<a href="https://help.netflix.com/node/1">Help</a></body></html>`,
	}))
	s := connectedSession(t, conn)

	records, err := s.FetchAndParse(context.Background(), []uint32{5})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, enum.CategoryHouseholdUpdate, records[0].Category)
	assert.Equal(t, "https://www.netflix.com/account/update-primary-location?nftoken=t1", records[0].Payload)
	assert.True(t, strings.HasPrefix(records[0].BodyPreview, `<html><body><a href="https://www.netflix.com/account/update-primary-location`))
	assert.NotContains(t, records[0].BodyPreview, "Confirm the update")
}

func TestSession_FetchAndParse_KeepsRecordWithoutPayload(t *testing.T) {
	conn := imaptest.NewConn()
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{
		UID:     6,
		Subject: "Your temporary access code",
		Text:    "Open the app on your TV to continue.",
	}))
	s := connectedSession(t, conn)

	records, err := s.FetchAndParse(context.Background(), []uint32{6})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, enum.CategoryTemporaryAccessCode, records[0].Category)
	assert.False(t, records[0].HasPayload())
}

func TestSession_FetchAndParse_TransportFailure(t *testing.T) {
	conn := imaptest.NewConn()
	conn.FetchErr = errors.New("read tcp: connection reset by peer")
	s := connectedSession(t, conn)

	_, err := s.FetchAndParse(context.Background(), []uint32{1})

	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.False(t, s.Connected())
}

func TestSession_WaitForSignal(t *testing.T) {
	conn := imaptest.NewConn()
	conn.ScriptIdle(
		imaptest.IdleResult{Signalled: true},
		imaptest.IdleResult{},
		imaptest.IdleResult{Err: errors.New("EOF")},
	)
	s := connectedSession(t, conn)
	ctx := context.Background()

	signalled, err := s.WaitForSignal(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, signalled)

	signalled, err = s.WaitForSignal(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, signalled)

	_, err = s.WaitForSignal(ctx, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.False(t, s.Connected())

	_, err = s.WaitForSignal(ctx, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrNotConnected))
}

func TestSession_MarkRead(t *testing.T) {
	conn := imaptest.NewConn()
	s := connectedSession(t, conn)

	s.MarkRead(context.Background(), "7")
	s.MarkRead(context.Background(), "not-a-uid")

	assert.Equal(t, []uint32{7}, conn.Seen())

	conn.MarkErr = errors.New("NO permission denied")
	s.MarkRead(context.Background(), "8")
	assert.True(t, s.Connected())
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	conn := imaptest.NewConn()
	s := connectedSession(t, conn)

	s.Disconnect()
	s.Disconnect()

	assert.False(t, s.Connected())
	assert.Equal(t, 1, conn.LogoutCalls())
}

func TestParsedMessage_PreviewIsBounded(t *testing.T) {
	p := &ParsedMessage{Text: strings.Repeat("código ", 100)}

	assert.Equal(t, bodyPreviewLength, len([]rune(p.Preview())))
}
