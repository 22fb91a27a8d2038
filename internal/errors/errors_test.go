package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Nil(t, ee.GetContext())
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	t.Parallel()

	inner := Newf("missing key").Category(CategoryConfiguration).Build()
	outer := Newf("pull failed: %w", inner).Component("cmd").Build()

	assert.Equal(t, CategoryConfiguration, outer.Category)
	assert.True(t, IsConfigError(outer))
	assert.ErrorIs(t, outer, inner)
}

func TestCategoryHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category ErrorCategory
		check    func(error) bool
	}{
		{"config", CategoryConfiguration, IsConfigError},
		{"format", CategoryFileParsing, IsFormatError},
		{"not_found", CategoryNotFound, IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Newf("boom").Category(tt.category).Build()
			assert.True(t, tt.check(err))
			assert.False(t, tt.check(fmt.Errorf("plain")))
		})
	}
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := Newf("bad file").
		FileContext("/tmp/sightings.geojson").
		Context("features", 3).
		Build()

	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "geojson", ctx["file_extension"])
	assert.Equal(t, 3, ctx["features"])

	ctx["features"] = 99
	assert.Equal(t, 3, ee.Context["features"])
}
