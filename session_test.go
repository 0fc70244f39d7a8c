package winevt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
)

func TestParseAuthFlag(t *testing.T) {
	tests := map[string]winevt.AuthFlag{
		"":          winevt.AuthDefault,
		"default":   winevt.AuthDefault,
		"Negotiate": winevt.AuthNegotiate,
		"kerberos":  winevt.AuthKerberos,
		"NTLM":      winevt.AuthNTLM,
	}
	for in, want := range tests {
		got, err := winevt.ParseAuthFlag(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, want.String(), got.String())
		}
	}

	_, err := winevt.ParseAuthFlag("digest")
	var ce *winevt.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "auth flag", ce.Field)
}
