package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFilterSearch(t *testing.T) {
	filter, err := NewOutputFilter(FilterSearch, "hello", false)
	require.NoError(t, err)

	assert.True(t, filter.Match("Hello world"))
	assert.False(t, filter.Match("goodbye"))
}

func TestOutputFilterSearchCaseSensitive(t *testing.T) {
	filter, err := NewOutputFilter(FilterSearch, "Hello", true)
	require.NoError(t, err)

	assert.True(t, filter.Match("Hello world"))
	assert.False(t, filter.Match("hello world"))
}

func TestOutputFilterErrors(t *testing.T) {
	filter, err := NewOutputFilter(FilterErrors, "", false)
	require.NoError(t, err)

	assert.True(t, filter.Match("ERROR something failed"))
	assert.True(t, filter.Match("java.lang.NullPointerException"))
	assert.False(t, filter.Match("all good"))
}

func TestOutputFilterRegex(t *testing.T) {
	filter, err := NewOutputFilter(FilterRegex, "h.llo", false)
	require.NoError(t, err)

	assert.True(t, filter.Match("HALLO"))
	assert.False(t, filter.Match("help"))
}

func TestOutputFilterRejectsBadInput(t *testing.T) {
	_, err := NewOutputFilter(FilterRegex, "(", false)
	assert.Error(t, err)

	_, err = NewOutputFilter("fuzzy", "x", false)
	assert.Error(t, err)
}

func TestFilterLines(t *testing.T) {
	lines := []string{"boot", "WARN low memory", "ready"}

	none, err := NewOutputFilter("", "", false)
	require.NoError(t, err)
	assert.Equal(t, lines, none.FilterLines(lines))

	errs, err := NewOutputFilter(FilterErrors, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"WARN low memory"}, errs.FilterLines(lines))
}
