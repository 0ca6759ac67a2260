package enum

// Category is the closed set of message kinds the monitor reports on.
// An unclassified message has no category and never enters the working set.
type Category string

const (
	CategoryNone                Category = ""
	CategorySignInCode          Category = "sign_in_code"
	CategoryTemporaryAccessCode Category = "temporary_access_code"
	CategoryHouseholdUpdate     Category = "household_update"
)

// Categories lists every category in enumeration order. Classification
// ties are broken by this order.
var Categories = []Category{
	CategorySignInCode,
	CategoryTemporaryAccessCode,
	CategoryHouseholdUpdate,
}

func (c Category) String() string {
	return string(c)
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CarriesCode reports whether the payload for this category is a numeric code
// rather than an action link.
func (c Category) CarriesCode() bool {
	return c == CategorySignInCode
}

// ParseCategory accepts a category name. The empty string parses to
// CategoryNone, which callers treat as "no filter".
func ParseCategory(s string) (Category, bool) {
	if s == "" {
		return CategoryNone, true
	}
	c := Category(s)
	return c, c.IsValid()
}
