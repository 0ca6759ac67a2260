package imap

import (
	"bytes"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/codewatch/internal/utils"
)

const bodyPreviewLength = 200

// recipientHeaders are consulted in order; forwarding setups often leave
// To pointing at a list while Delivered-To names the real mailbox.
var recipientHeaders = []string{"To", "Delivered-To", "X-Forwarded-To"}

type ParsedMessage struct {
	Subject   string
	From      string
	Recipient string
	RawDate   string
	Timestamp int64
	HTML      string
	Text      string
}

// Body prefers the HTML part since provider links live there.
func (p *ParsedMessage) Body() string {
	if strings.TrimSpace(p.HTML) != "" {
		return p.HTML
	}
	return p.Text
}

// Preview is the start of the selected body with whitespace collapsed.
func (p *ParsedMessage) Preview() string {
	return utils.TruncateRunes(utils.CollapseWhitespace(p.Body()), bodyPreviewLength)
}

func ParseMessage(raw []byte) (*ParsedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty message")
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "enmime")
	}

	parsed := &ParsedMessage{
		Subject:   strings.TrimSpace(env.GetHeader("Subject")),
		From:      strings.TrimSpace(env.GetHeader("From")),
		Recipient: recipient(env),
		RawDate:   strings.TrimSpace(env.GetHeader("Date")),
		HTML:      env.HTML,
		Text:      env.Text,
	}

	if parsed.RawDate != "" {
		if t, err := mail.ParseDate(parsed.RawDate); err == nil {
			parsed.Timestamp = t.Unix()
		}
	}

	return parsed, nil
}

// recipient returns the first header in the chain that names a syntactically
// valid address.
func recipient(env *enmime.Envelope) string {
	for _, header := range recipientHeaders {
		value := strings.TrimSpace(env.GetHeader(header))
		if value == "" {
			continue
		}
		addresses, err := env.AddressList(header)
		if err != nil || len(addresses) == 0 {
			if _, ok := utils.IsValidEmail(value); ok {
				return value
			}
			continue
		}
		for _, addr := range addresses {
			if _, ok := utils.IsValidEmail(addr.Address); ok {
				return value
			}
		}
	}
	return ""
}
