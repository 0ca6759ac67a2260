package classifier

import (
	"regexp"

	"github.com/customeros/codewatch/internal/enum"
)

// RulesVersion changes whenever the default vocabulary changes.
const RulesVersion = "2"

// Rule is one category's trigger vocabulary. Any matching pattern selects it.
type Rule struct {
	Category enum.Category
	Patterns []*regexp.Regexp
}

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

// defaultRules is ordered by enum.Categories. Spanish and English phrasings
// are both covered since the provider localizes per account.
var defaultRules = []Rule{
	{
		Category: enum.CategorySignInCode,
		Patterns: mustCompileAll(
			`c[oó]digo de inicio`,
			`sign-in code`,
			`verification code`,
			`c[oó]digo de verificaci[oó]n`,
		),
	},
	{
		Category: enum.CategoryTemporaryAccessCode,
		Patterns: mustCompileAll(
			`c[oó]digo de acceso temporal`,
			`c[oó]digo temporal`,
			`obtener c[oó]digo`,
			`temporary code`,
			`temporary access code`,
			`one-time code`,
			`c[oó]digo de un solo uso`,
		),
	},
	{
		Category: enum.CategoryHouseholdUpdate,
		Patterns: mustCompileAll(
			`actualizaci[oó]n de hogar`,
			`actualizar tu hogar`,
			`confirmar hogar`,
			`household update`,
			`update your \w+ household`,
			`manage your household`,
			`administra tu hogar`,
			`¿solicitaste actualizar`,
			`actualizar.*?hogar`,
		),
	},
}
