package imap

import (
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	apperrors "github.com/customeros/codewatch/internal/errors"
)

// Idle waits for a mailbox change for at most timeout. Updates that arrived
// since the last wait count as a signal without entering IDLE at all.
func (m *imapConn) Idle(timeout time.Duration) (bool, error) {
	if m.drainPending() {
		return true, nil
	}

	stop := make(chan struct{})
	idleDone := make(chan error, 1)

	m.c.Timeout = 0
	go func() {
		idleDone <- m.c.Idle(stop, &client.IdleOptions{
			LogoutTimeout: 0,
			PollInterval:  idlePollInterval(timeout),
		})
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	signalled := false
	var idleErr error
	idleReturned := false

wait:
	for {
		select {
		case update := <-m.updates:
			if isMailboxChange(update) {
				signalled = true
				break wait
			}
		case <-timer.C:
			break wait
		case idleErr = <-idleDone:
			idleReturned = true
			break wait
		}
	}

	if idleReturned {
		if idleErr == nil {
			idleErr = errors.New("idle ended unexpectedly")
		}
		return false, apperrors.NewNetworkError(m.account, "idle", idleErr)
	}

	close(stop)
	select {
	case idleErr = <-idleDone:
	case <-time.After(m.idleGrace):
		_ = m.c.Terminate()
		return signalled, apperrors.NewNetworkError(m.account, "idle", errors.New("server did not end idle"))
	}
	m.c.Timeout = commandTimeout

	if idleErr != nil {
		return signalled, apperrors.NewNetworkError(m.account, "idle", idleErr)
	}
	return signalled, nil
}

func (m *imapConn) drainPending() bool {
	pending := false
	for {
		select {
		case update := <-m.updates:
			if isMailboxChange(update) {
				pending = true
			}
		default:
			return pending
		}
	}
}

func isMailboxChange(update client.Update) bool {
	switch update.(type) {
	case *client.MailboxUpdate, *client.ExpungeUpdate, *client.MessageUpdate:
		return true
	default:
		return false
	}
}

// idlePollInterval only matters for servers without IDLE, where go-imap
// falls back to NOOP polling.
func idlePollInterval(timeout time.Duration) time.Duration {
	interval := timeout / 3
	if interval < time.Second {
		return time.Second
	}
	return interval
}
