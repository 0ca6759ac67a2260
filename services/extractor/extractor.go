package extractor

import (
	"strings"

	"github.com/customeros/codewatch/internal/enum"
)

// Extractor pulls the actionable payload out of a classified message body:
// a numeric code for sign-in messages, a provider link for the rest.
// Extraction never fails; an empty string means nothing usable was found.
type Extractor struct {
	providerDomain string
}

func New(providerDomain string) *Extractor {
	return &Extractor{providerDomain: strings.ToLower(strings.TrimSpace(providerDomain))}
}

func (e *Extractor) ProviderDomain() string {
	return e.providerDomain
}

func (e *Extractor) Extract(body string, category enum.Category) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	doc := parseBody(body)

	switch category {
	case enum.CategorySignInCode:
		return extractCode(doc.text)
	case enum.CategoryTemporaryAccessCode, enum.CategoryHouseholdUpdate:
		return e.extractLink(doc, category)
	default:
		return ""
	}
}
