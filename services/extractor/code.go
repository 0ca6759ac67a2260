package extractor

import "regexp"

// codePatterns are tried in order; the first capture wins.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:código|codigo|code).*?(?:iniciar sesi[oó]n|sign[- ]?in|log[- ]?in).*?\b(\d{4,8})\b`),
	regexp.MustCompile(`(?is)(?:iniciar sesi[oó]n|sign[- ]?in|log[- ]?in).*?(?:código|codigo|code).*?\b(\d{4,8})\b`),
	regexp.MustCompile(`(?is)(?:ingresa|enter).*?(?:este|this).*?(?:código|codigo|code).*?\b(\d{4,8})\b`),
	regexp.MustCompile(`(?is)(?:para|to).*?(?:iniciar sesi[oó]n|sign in).*?\b(\d{4,8})\b`),
}

var (
	signInMention = regexp.MustCompile(`(?i)sign[- ]?in|iniciar sesi[oó]n`)
	bareCode      = regexp.MustCompile(`\b(\d{4,6})\b`)
)

func extractCode(text string) string {
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(text); len(m) > 1 {
			return m[1]
		}
	}

	if signInMention.MatchString(text) {
		if m := bareCode.FindStringSubmatch(text); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
