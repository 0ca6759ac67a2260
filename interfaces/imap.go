package interfaces

import (
	"context"
	"time"

	"github.com/customeros/codewatch/internal/models"
)

// MailboxConn is the narrow protocol surface the monitor needs from a mail
// server connection. It is owned by one session and never shared.
type MailboxConn interface {
	Login(username, password string) error
	Select(mailbox string) error
	// SearchRaw runs a provider-native query (e.g. X-GM-RAW).
	SearchRaw(query string) ([]uint32, error)
	Search(criteria SearchCriteria) ([]uint32, error)
	Fetch(uids []uint32) ([]RawMessage, error)
	MarkSeen(uid uint32) error
	// Idle blocks until the server reports a mailbox change or timeout
	// elapses. It returns false on timeout.
	Idle(timeout time.Duration) (bool, error)
	Logout() error
}

// MailboxDialer opens a transport-level connection. Authentication is a
// separate step so failures can be told apart.
type MailboxDialer func(ctx context.Context, account models.Account) (MailboxConn, error)

type SearchCriteria struct {
	From    string
	Subject string
	Since   time.Time
}

type RawMessage struct {
	UID          uint32
	InternalDate time.Time
	Body         []byte
}
