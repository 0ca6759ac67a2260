// Package imaptest provides an in-memory MailboxConn for tests.
package imaptest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/models"
)

type IdleResult struct {
	Signalled bool
	Err       error
}

// Conn is a scriptable MailboxConn. Zero values behave like a healthy,
// empty mailbox whose idle always times out.
type Conn struct {
	mu sync.Mutex

	LoginErr  error
	SelectErr error

	RawIDs    []uint32
	RawErr    error
	FromIDs   []uint32
	FromErr   error
	SubjIDs   []uint32
	SubjErr   error
	FetchErr  error
	MarkErr   error
	IdleDelay time.Duration

	messages    map[uint32]interfaces.RawMessage
	idleScript  []IdleResult
	rawQueries  []string
	criteria    []interfaces.SearchCriteria
	seen        []uint32
	idleCalls   int
	fetchCalls  int
	logoutCalls int
}

func NewConn() *Conn {
	return &Conn{messages: make(map[uint32]interfaces.RawMessage)}
}

func (c *Conn) AddMessage(msg interfaces.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[msg.UID] = msg
}

// ScriptIdle queues results returned by successive Idle calls. Once the
// script runs out, Idle times out.
func (c *Conn) ScriptIdle(results ...IdleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleScript = append(c.idleScript, results...)
}

func (c *Conn) Login(username, password string) error {
	return c.LoginErr
}

func (c *Conn) Select(mailbox string) error {
	return c.SelectErr
}

func (c *Conn) SearchRaw(query string) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawQueries = append(c.rawQueries, query)
	if c.RawErr != nil {
		return nil, c.RawErr
	}
	return append([]uint32(nil), c.RawIDs...), nil
}

func (c *Conn) Search(criteria interfaces.SearchCriteria) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criteria = append(c.criteria, criteria)
	if criteria.From != "" {
		if c.FromErr != nil {
			return nil, c.FromErr
		}
		return append([]uint32(nil), c.FromIDs...), nil
	}
	if c.SubjErr != nil {
		return nil, c.SubjErr
	}
	return append([]uint32(nil), c.SubjIDs...), nil
}

func (c *Conn) Fetch(uids []uint32) ([]interfaces.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchCalls++
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}
	var result []interfaces.RawMessage
	for _, uid := range uids {
		if msg, ok := c.messages[uid]; ok {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (c *Conn) MarkSeen(uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MarkErr != nil {
		return c.MarkErr
	}
	c.seen = append(c.seen, uid)
	return nil
}

func (c *Conn) Idle(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	c.idleCalls++
	var next *IdleResult
	if len(c.idleScript) > 0 {
		next = &c.idleScript[0]
		c.idleScript = c.idleScript[1:]
	}
	delay := c.IdleDelay
	c.mu.Unlock()

	if next != nil {
		return next.Signalled, next.Err
	}
	if delay > timeout {
		delay = timeout
	}
	time.Sleep(delay)
	return false, nil
}

func (c *Conn) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutCalls++
	return nil
}

func (c *Conn) RawQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rawQueries...)
}

func (c *Conn) Criteria() []interfaces.SearchCriteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interfaces.SearchCriteria(nil), c.criteria...)
}

func (c *Conn) Seen() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.seen...)
}

func (c *Conn) IdleCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleCalls
}

func (c *Conn) FetchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCalls
}

func (c *Conn) LogoutCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutCalls
}

// Dialer hands out connections per account and counts dials.
type Dialer struct {
	mu    sync.Mutex
	conns map[string]*Conn
	errs  map[string]error
	dials map[string]int
}

func NewDialer() *Dialer {
	return &Dialer{
		conns: make(map[string]*Conn),
		errs:  make(map[string]error),
		dials: make(map[string]int),
	}
}

// Set registers the connection returned for an account on every dial.
func (d *Dialer) Set(address string, conn *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[address] = conn
}

func (d *Dialer) FailWith(address string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[address] = err
}

func (d *Dialer) Dials(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[address]
}

func (d *Dialer) Dial(_ context.Context, account models.Account) (interfaces.MailboxConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[account.Address]++
	if err := d.errs[account.Address]; err != nil {
		return nil, err
	}
	conn, ok := d.conns[account.Address]
	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", account.Address)
	}
	return conn, nil
}

type MessageSpec struct {
	UID       uint32
	Subject   string
	From      string
	To        string
	Date      time.Time
	Text      string
	HTML      string
	ExtraHead map[string]string
}

// Message renders a minimal RFC 5322 message.
func Message(spec MessageSpec) interfaces.RawMessage {
	var b strings.Builder
	from := spec.From
	if from == "" {
		from = "Netflix <info@account.netflix.com>"
	}
	date := spec.Date
	if date.IsZero() {
		date = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	if spec.To != "" {
		fmt.Fprintf(&b, "To: %s\r\n", spec.To)
	}
	for k, v := range spec.ExtraHead {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", spec.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%d@test.local>\r\n", spec.UID)
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case spec.HTML != "" && spec.Text != "":
		b.WriteString("Content-Type: multipart/alternative; boundary=\"b1\"\r\n\r\n")
		b.WriteString("--b1\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(spec.Text + "\r\n")
		b.WriteString("--b1\r\nContent-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(spec.HTML + "\r\n")
		b.WriteString("--b1--\r\n")
	case spec.HTML != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(spec.HTML + "\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(spec.Text + "\r\n")
	}

	return interfaces.RawMessage{UID: spec.UID, InternalDate: date, Body: []byte(b.String())}
}
