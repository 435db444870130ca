package token

import (
	"context"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

// OneTimeService issues and validates email-verification and
// password-reset tokens, consulting the used-token blacklist on
// validation as spec.md §4.2 requires.
type OneTimeService struct {
	signer     *Signer
	cfg        Config
	blacklist  *blacklistAdapter
}

// blacklistAdapter narrows internal/cache.Blacklist's signature (which
// takes an explicit ttl) to the fixed-per-call-site ttl this service
// needs, so OneTimeService doesn't import internal/cache directly and
// stays free to be unit-tested with any MarkUsed/IsUsed implementation.
type blacklistAdapter struct {
	markUsed func(ctx context.Context, token string) error
	isUsed   func(ctx context.Context, token string) bool
}

func NewOneTimeService(signer *Signer, cfg Config, markUsed func(ctx context.Context, token string) error, isUsed func(ctx context.Context, token string) bool) *OneTimeService {
	return &OneTimeService{signer: signer, cfg: cfg, blacklist: &blacklistAdapter{markUsed: markUsed, isUsed: isUsed}}
}

// IssueEmailVerification mints a verification token for email.
func (s *OneTimeService) IssueEmailVerification(email string) (string, error) {
	return s.signer.IssueOneTimeToken(email, OneTimeTypeEmailVerification, s.cfg.EmailVerifyTTL)
}

// VerifyEmailVerification validates and consumes a verification token,
// returning the subject email on success.
func (s *OneTimeService) VerifyEmailVerification(ctx context.Context, raw string) (string, error) {
	return s.verifyOnce(ctx, raw, OneTimeTypeEmailVerification)
}

// IssuePasswordReset mints a password-reset token for email.
func (s *OneTimeService) IssuePasswordReset(email string) (string, error) {
	return s.signer.IssueOneTimeToken(email, OneTimeTypePasswordReset, s.cfg.PasswordResetTTL)
}

// VerifyPasswordReset validates and consumes a password-reset token.
func (s *OneTimeService) VerifyPasswordReset(ctx context.Context, raw string) (string, error) {
	return s.verifyOnce(ctx, raw, OneTimeTypePasswordReset)
}

func (s *OneTimeService) verifyOnce(ctx context.Context, raw, expectedType string) (string, error) {
	if s.blacklist.isUsed(ctx, raw) {
		return "", apperrors.InvalidToken()
	}
	email, err := s.signer.ParseOneTimeToken(raw, expectedType)
	if err != nil {
		return "", apperrors.ExpiredToken()
	}
	if err := s.blacklist.markUsed(ctx, raw); err != nil {
		return "", apperrors.Internal("mark one-time token used", err)
	}
	return email, nil
}
