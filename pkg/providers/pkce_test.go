package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/providers"
)

func TestChallengeS256(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", providers.ChallengeS256(verifier))
}

func TestNewVerifier(t *testing.T) {
	a := providers.NewVerifier()
	b := providers.NewVerifier()

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

func TestNewStateToken(t *testing.T) {
	a, err := providers.NewStateToken()
	require.NoError(t, err)
	b, err := providers.NewStateToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
