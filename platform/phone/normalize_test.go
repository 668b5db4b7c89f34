package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToE164(t *testing.T) {
	got, err := ToE164("+31 6 12345678", "NL")
	require.NoError(t, err)
	assert.Equal(t, "+31612345678", got)

	_, err = ToE164("not a number", "NL")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func TestNormalizeE164FallsBackToInput(t *testing.T) {
	assert.Equal(t, "abc", NormalizeE164("  abc "))
}

func TestLooksLikePhone(t *testing.T) {
	assert.True(t, LooksLikePhone("+31612345678", "NL"))
	assert.False(t, LooksLikePhone("12", "NL"))
	assert.False(t, LooksLikePhone("landing-hero", "NL"))
}
