package imap

import (
	"context"

	"github.com/pkg/errors"

	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/services/classifier"
)

// CheckResult is the outcome of a one-off connectivity check.
type CheckResult struct {
	Account   string
	Connected bool
	Found     int
	Records   []models.EmailRecord
	Err       error
}

// CheckAccount connects, searches the full window and classifies what it
// finds, then disconnects. It never touches monitoring state.
func CheckAccount(ctx context.Context, account models.Account, deps SessionDeps, daysBack int) CheckResult {
	result := CheckResult{Account: account.Address}

	session := NewSession(account, deps)
	defer session.Disconnect()

	if err := session.Connect(ctx); err != nil {
		result.Err = err
		return result
	}
	result.Connected = true

	ids, err := session.SearchWindow(ctx, daysBack)
	if errors.Is(err, apperrors.ErrSearchFallbackExhausted) {
		return result
	}
	if err != nil {
		result.Err = err
		return result
	}
	result.Found = len(ids)

	result.Records, result.Err = session.FetchAndParse(ctx, ids)
	return result
}

// Inspection explains how a single message file was classified.
type Inspection struct {
	Message *ParsedMessage
	Match   classifier.Result
	Payload string
}

// Inspect runs one raw message through the same parse, classify and extract
// pipeline the monitor uses.
func Inspect(raw []byte, deps SessionDeps) (Inspection, error) {
	parsed, err := ParseMessage(raw)
	if err != nil {
		return Inspection{}, apperrors.NewParseError("", "file", err)
	}

	body := parsed.Body()
	inspection := Inspection{
		Message: parsed,
		Match:   deps.Classifier.ClassifyWithReason(parsed.Subject, body),
	}
	if inspection.Match.Category.IsValid() {
		inspection.Payload = deps.Extractor.Extract(body, inspection.Match.Category)
	}
	return inspection, nil
}
