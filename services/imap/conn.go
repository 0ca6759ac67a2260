package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/pkg/errors"

	"github.com/customeros/codewatch/interfaces"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
)

const (
	commandTimeout   = 30 * time.Second
	logoutTimeout    = 5 * time.Second
	idleExitGrace    = 10 * time.Second
	updateBufferSize = 128
)

type ServerConfig struct {
	Host string
	Port int
	// InsecureSkipVerify is for local test servers only.
	InsecureSkipVerify bool
}

// imapConn adapts a go-imap client to interfaces.MailboxConn.
type imapConn struct {
	account string
	c       *client.Client
	updates chan client.Update
	// idleGrace bounds how long a stopped IDLE may take to end.
	idleGrace time.Duration
}

func newIMAPConn(account string, c *client.Client) *imapConn {
	updates := make(chan client.Update, updateBufferSize)
	c.Updates = updates
	c.Timeout = commandTimeout
	return &imapConn{account: account, c: c, updates: updates, idleGrace: idleExitGrace}
}

// NewDialer returns a MailboxDialer that opens implicit-TLS connections.
func NewDialer(cfg ServerConfig) interfaces.MailboxDialer {
	return func(ctx context.Context, account models.Account) (interfaces.MailboxConn, error) {
		serverAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

		dialer := &net.Dialer{
			Timeout:   commandTimeout,
			KeepAlive: 30 * time.Second,
		}
		if deadline, ok := ctx.Deadline(); ok {
			dialer.Deadline = deadline
		}

		tlsConfig := &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint: gosec
		}

		c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
		if err != nil {
			return nil, apperrors.NewNetworkError(account.Address, "dial", errors.Wrapf(err, "failed to connect to %s", serverAddr))
		}

		return newIMAPConn(account.Address, c), nil
	}
}

func (m *imapConn) Login(username, password string) error {
	m.c.Timeout = commandTimeout
	if err := m.c.Login(username, password); err != nil {
		if apperrors.IsConnectionError(err) {
			return apperrors.NewNetworkError(m.account, "login", err)
		}
		return apperrors.NewAuthError(m.account, err)
	}
	return nil
}

func (m *imapConn) Select(mailbox string) error {
	m.c.Timeout = commandTimeout
	if _, err := m.c.Select(mailbox, false); err != nil {
		return apperrors.NewNetworkError(m.account, "select", err)
	}
	return nil
}

// SearchRaw issues UID SEARCH X-GM-RAW. go-imap has no typed support for the
// extension, so the command is built by hand.
func (m *imapConn) SearchRaw(query string) ([]uint32, error) {
	m.c.Timeout = commandTimeout

	cmd := &goimap.Command{
		Name: "UID",
		Arguments: []interface{}{
			goimap.RawString("SEARCH"),
			goimap.RawString("X-GM-RAW"),
			query,
		},
	}
	res := &responses.Search{}

	status, err := m.c.Execute(cmd, res)
	if err != nil {
		return nil, err
	}
	if err := status.Err(); err != nil {
		return nil, err
	}
	return res.Ids, nil
}

func (m *imapConn) Search(criteria interfaces.SearchCriteria) ([]uint32, error) {
	m.c.Timeout = commandTimeout

	sc := goimap.NewSearchCriteria()
	if criteria.From != "" {
		sc.Header.Add("From", criteria.From)
	}
	if criteria.Subject != "" {
		sc.Header.Add("Subject", criteria.Subject)
	}
	if !criteria.Since.IsZero() {
		sc.Since = criteria.Since
	}
	return m.c.UidSearch(sc)
}

func (m *imapConn) Fetch(uids []uint32) ([]interfaces.RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	m.c.Timeout = commandTimeout

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uids...)

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *goimap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqSet, items, messages)
	}()

	var result []interfaces.RawMessage
	for msg := range messages {
		raw := interfaces.RawMessage{UID: msg.Uid, InternalDate: msg.InternalDate}
		// only the full-message section was requested
		for _, literal := range msg.Body {
			if literal == nil {
				continue
			}
			if body, err := io.ReadAll(literal); err == nil {
				raw.Body = body
			}
			break
		}
		result = append(result, raw)
	}

	if err := <-done; err != nil {
		return result, err
	}
	return result, nil
}

func (m *imapConn) MarkSeen(uid uint32) error {
	m.c.Timeout = commandTimeout

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	return m.c.UidStore(seqSet, item, []interface{}{goimap.SeenFlag}, nil)
}

func (m *imapConn) Logout() error {
	m.c.Timeout = logoutTimeout

	done := make(chan error, 1)
	go func() {
		done <- m.c.Logout()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(logoutTimeout):
		_ = m.c.Terminate()
		return errors.New("logout timed out")
	}
}
