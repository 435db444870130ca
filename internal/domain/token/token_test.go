package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Secret:           []byte("test-secret-key-not-for-production"),
		Issuer:           "kudos",
		Audience:         "kudos-clients",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  30 * 24 * time.Hour,
		EmailVerifyTTL:   24 * time.Hour,
		PasswordResetTTL: 30 * time.Minute,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	signer := NewSigner(testConfig())
	raw, exp, err := signer.IssueAccessToken("user-1", "user")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	claims, err := signer.ParseAccessToken(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "user", claims.UserType)
	require.Equal(t, accessTokenScope, claims.Scope)
}

func TestParseAccessTokenRejectsWrongAudience(t *testing.T) {
	signer := NewSigner(testConfig())
	raw, _, err := signer.IssueAccessToken("user-1", "user")
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.Audience = "someone-else"
	other := NewSigner(otherCfg)
	_, err = other.ParseAccessToken(raw)
	require.Error(t, err)
}

func TestOneTimeTokenTypeMismatchRejected(t *testing.T) {
	signer := NewSigner(testConfig())
	raw, err := signer.IssueOneTimeToken("alice@example.com", OneTimeTypeEmailVerification, time.Hour)
	require.NoError(t, err)

	_, err = signer.ParseOneTimeToken(raw, OneTimeTypePasswordReset)
	require.Error(t, err)
}

func TestWireFormatSplitRejectsMalformed(t *testing.T) {
	_, _, err := SplitWireFormat("not-a-valid-token")
	require.Error(t, err)

	_, _, err = SplitWireFormat("not-a-uuid.secret")
	require.Error(t, err)
}

func TestWireFormatRoundTrip(t *testing.T) {
	secret, hash, err := GenerateRefreshSecret()
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.True(t, CompareSecret(hash, secret))
	require.False(t, CompareSecret(hash, "wrong-secret"))

	wire := WireFormat("11111111-1111-1111-1111-111111111111", secret)
	jti, gotSecret, err := SplitWireFormat(wire)
	require.NoError(t, err)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", jti)
	require.Equal(t, secret, gotSecret)
}
