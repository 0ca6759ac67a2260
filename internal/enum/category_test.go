package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("household_update")
	assert.True(t, ok)
	assert.Equal(t, CategoryHouseholdUpdate, c)

	c, ok = ParseCategory("")
	assert.True(t, ok)
	assert.Equal(t, CategoryNone, c)

	_, ok = ParseCategory("newsletter")
	assert.False(t, ok)
}

func TestCategoryOrder(t *testing.T) {
	assert.Equal(t, []Category{CategorySignInCode, CategoryTemporaryAccessCode, CategoryHouseholdUpdate}, Categories)
	assert.False(t, CategoryNone.IsValid())
	assert.True(t, CategorySignInCode.CarriesCode())
	assert.False(t, CategoryHouseholdUpdate.CarriesCode())
}
