package relational

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytech/selenium/domain"
)

func TestCapsRoundTrip_UnicodeAndQuotes(t *testing.T) {
	caps := domain.Capabilities{
		"browserName": "chrome",
		"note":        `he said "hello" — 日本語`,
	}
	encoded, err := capsToJSON(caps)
	require.NoError(t, err)

	decoded, err := jsonToCaps(&encoded)
	require.NoError(t, err)
	assert.Equal(t, "chrome", decoded.BrowserName())
	assert.Equal(t, caps["note"], decoded["note"])
}

func TestJSONToCaps_NullDecodesToEmpty(t *testing.T) {
	caps, err := jsonToCaps(nil)
	require.NoError(t, err)
	assert.NotNil(t, caps)
	assert.Empty(t, caps)
}

func TestCapsToJSON_Empty(t *testing.T) {
	encoded, err := capsToJSON(domain.Capabilities{})
	require.NoError(t, err)
	decoded, err := jsonToCaps(&encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
