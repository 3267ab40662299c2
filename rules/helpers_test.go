package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWithEscapeCharacter(t *testing.T) {
	t.Parallel()

	parts := splitWithEscapeCharacter("opt1,opt2", ',', '\\', false)
	assert.Equal(t, []string{"opt1", "opt2"}, parts)

	parts = splitWithEscapeCharacter("opt1\\,opt2,,", ',', '\\', false)
	assert.Equal(t, []string{"opt1,opt2"}, parts)

	parts = splitWithEscapeCharacter("opt1,\\opt2,,", ',', '\\', true)
	assert.Equal(t, []string{"opt1", "\\opt2", "", ""}, parts)

	assert.Empty(t, splitWithEscapeCharacter("", ',', '\\', true))
}

func TestLoadDomains(t *testing.T) {
	t.Parallel()

	permitted, restricted, err := loadDomains("Example.org|~sub.example.org|example.*", "|")
	require.NoError(t, err)

	assert.Equal(t, []string{"example.org", "example.*"}, permitted)
	assert.Equal(t, []string{"sub.example.org"}, restricted)

	_, _, err = loadDomains("", "|")
	assert.Error(t, err)

	_, _, err = loadDomains("example.org|", "|")
	assert.Error(t, err)

	_, _, err = loadDomains("example.org/path", "|")
	assert.Error(t, err)
}

func TestIsDomainOrSubdomainOfAny(t *testing.T) {
	t.Parallel()

	domains := []string{"example.org", "tracker.*"}

	assert.True(t, isDomainOrSubdomainOfAny("example.org", domains))
	assert.True(t, isDomainOrSubdomainOfAny("sub.example.org", domains))
	assert.True(t, isDomainOrSubdomainOfAny("tracker.com", domains))
	assert.True(t, isDomainOrSubdomainOfAny("a.tracker.co.uk", domains))

	assert.False(t, isDomainOrSubdomainOfAny("notexample.org", domains))
	assert.False(t, isDomainOrSubdomainOfAny("example.com", domains))
	assert.False(t, isDomainOrSubdomainOfAny("tracker.example.org.evil", domains))
	assert.False(t, isDomainOrSubdomainOfAny("", domains))
}
