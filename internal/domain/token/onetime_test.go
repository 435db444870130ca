package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFakeBlacklist() (markUsed func(ctx context.Context, token string) error, isUsed func(ctx context.Context, token string) bool) {
	used := make(map[string]bool)
	markUsed = func(_ context.Context, token string) error {
		used[token] = true
		return nil
	}
	isUsed = func(_ context.Context, token string) bool {
		return used[token]
	}
	return markUsed, isUsed
}

func TestOneTimeServiceRejectsReuse(t *testing.T) {
	markUsed, isUsed := newFakeBlacklist()
	svc := NewOneTimeService(NewSigner(testConfig()), testConfig(), markUsed, isUsed)

	raw, err := svc.IssueEmailVerification("alice@example.com")
	require.NoError(t, err)

	email, err := svc.VerifyEmailVerification(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", email)

	_, err = svc.VerifyEmailVerification(context.Background(), raw)
	require.Error(t, err)
}

func TestOneTimeServicePasswordResetSeparateFromVerification(t *testing.T) {
	markUsed, isUsed := newFakeBlacklist()
	svc := NewOneTimeService(NewSigner(testConfig()), testConfig(), markUsed, isUsed)

	raw, err := svc.IssuePasswordReset("bob@example.com")
	require.NoError(t, err)

	_, err = svc.VerifyEmailVerification(context.Background(), raw)
	require.Error(t, err, "a password-reset token must not validate as an email-verification token")

	email, err := svc.VerifyPasswordReset(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", email)
}
