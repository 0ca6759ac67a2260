package imap

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/codewatch/interfaces"
	apperrors "github.com/customeros/codewatch/internal/errors"
)

type Provider struct {
	Domain string
	Name   string
}

// searchStrategy is one way of asking the server for provider mail. The
// chain runs in order and stops at the first strategy that returns hits.
type searchStrategy struct {
	name string
	run  func(conn interfaces.MailboxConn) ([]uint32, error)
}

// searchChain builds the strategies for one search. since bounds the SINCE
// strategies; after is the day passed to the raw after: operator.
func searchChain(provider Provider, since, after time.Time) []searchStrategy {
	return []searchStrategy{
		{
			name: "x-gm-raw",
			run: func(conn interfaces.MailboxConn) ([]uint32, error) {
				return conn.SearchRaw(fmt.Sprintf("from:%s after:%s", provider.Domain, after.Format("2006/01/02")))
			},
		},
		{
			name: "from-since",
			run: func(conn interfaces.MailboxConn) ([]uint32, error) {
				return conn.Search(interfaces.SearchCriteria{From: provider.Domain, Since: since})
			},
		},
		{
			name: "subject-since",
			run: func(conn interfaces.MailboxConn) ([]uint32, error) {
				return conn.Search(interfaces.SearchCriteria{Subject: provider.Name, Since: since})
			},
		},
	}
}

type searchOutcome struct {
	ids      []uint32
	strategy string
}

// runSearchChain returns the first non-empty result. If every strategy
// errored, the last error is reported; a transport failure surfaces as a
// network error so the registry can recycle the session.
func runSearchChain(account string, conn interfaces.MailboxConn, chain []searchStrategy) (searchOutcome, error) {
	var lastErr error
	succeeded := false

	for _, strategy := range chain {
		ids, err := strategy.run(conn)
		if err != nil {
			lastErr = err
			if apperrors.IsConnectionError(err) {
				return searchOutcome{}, apperrors.NewNetworkError(account, "search", err)
			}
			continue
		}
		succeeded = true
		if len(ids) > 0 {
			return searchOutcome{ids: ids, strategy: strategy.name}, nil
		}
	}

	if succeeded {
		return searchOutcome{}, nil
	}
	return searchOutcome{}, errors.Wrap(apperrors.ErrSearchFallbackExhausted, errorText(lastErr))
}

func errorText(err error) string {
	if err == nil {
		return "no strategies configured"
	}
	return err.Error()
}
