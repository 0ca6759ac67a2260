package extractor

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/customeros/codewatch/internal/enum"
)

// anchorPhrases are the call-to-action texts the provider uses on the button
// that carries the payload link.
var anchorPhrases = map[enum.Category][]string{
	enum.CategoryTemporaryAccessCode: {
		"get code",
		"obtener código",
		"obtener codigo",
		"send code",
		"enviar código",
		"this was me",
		"fui yo",
		"confirm",
		"confirmar",
	},
	enum.CategoryHouseholdUpdate: {
		"this was me",
		"fui yo",
		"la envié yo",
		"la envie yo",
		"confirm update",
		"confirmar actualización",
		"confirmar actualizacion",
		"update household",
		"actualizar hogar",
		"confirmar hogar",
		"confirm",
		"confirmar",
	},
}

// pathFragments are checked in order, most specific first.
var pathFragments = map[enum.Category][]string{
	enum.CategoryTemporaryAccessCode: {
		"/temporary-access/",
		"temp-access",
		"/account/travel",
		"otp",
		"nmv",
		"access",
	},
	enum.CategoryHouseholdUpdate: {
		"/household/",
		"/update-household",
		"/account/update-primary-location",
		"update_household",
		"household",
	},
}

var excludedFragments = []string{"help", "unsubscribe", "privacy"}

func (e *Extractor) extractLink(doc parsedBody, category enum.Category) string {
	candidates := make([]anchor, 0, len(doc.links))
	for _, link := range doc.links {
		if e.isProviderLink(link.href) && !isExcluded(link.href) {
			candidates = append(candidates, link)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	// anchor text
	for _, link := range candidates {
		text := strings.ToLower(link.text)
		if text == "" {
			continue
		}
		for _, phrase := range anchorPhrases[category] {
			if strings.Contains(text, phrase) {
				return link.href
			}
		}
	}

	// URL path fragment
	for _, fragment := range pathFragments[category] {
		for _, link := range candidates {
			if strings.Contains(strings.ToLower(pathAndQuery(link.href)), fragment) {
				return link.href
			}
		}
	}

	// any remaining provider link
	return candidates[0].href
}

func (e *Extractor) isProviderLink(href string) bool {
	if e.providerDomain == "" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == e.providerDomain {
		return true
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return registrable == e.providerDomain
}

func isExcluded(href string) bool {
	lower := strings.ToLower(href)
	for _, fragment := range excludedFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func pathAndQuery(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path + "?" + u.RawQuery
}
