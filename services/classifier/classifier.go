package classifier

import (
	"strings"

	"github.com/customeros/codewatch/internal/enum"
)

type Result struct {
	Category enum.Category
	Reason   string
}

// Classifier maps subject and body text to at most one category. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

func New() *Classifier {
	return &Classifier{rules: defaultRules}
}

// NewWithRules is for callers that need a different vocabulary. Rules are
// evaluated in slice order.
func NewWithRules(rules []Rule) *Classifier {
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Classifier{rules: copied}
}

func (c *Classifier) Classify(subject, body string) enum.Category {
	return c.ClassifyWithReason(subject, body).Category
}

// ClassifyWithReason also reports which pattern fired, for logs and the CLI.
func (c *Classifier) ClassifyWithReason(subject, body string) Result {
	text := subject + "\n" + body
	if strings.TrimSpace(text) == "" {
		return Result{Category: enum.CategoryNone}
	}

	for _, rule := range c.rules {
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(text) {
				return Result{Category: rule.Category, Reason: pattern.String()}
			}
		}
	}
	return Result{Category: enum.CategoryNone}
}

func (c *Classifier) Rules() []Rule {
	copied := make([]Rule, len(c.rules))
	copy(copied, c.rules)
	return copied
}
