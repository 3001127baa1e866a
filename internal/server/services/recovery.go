package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/dmitrijs2005/pinvault/internal/server/auth"
	"github.com/dmitrijs2005/pinvault/internal/server/mailer"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// OtpLength is the number of digits in an emailed recovery code.
const OtpLength = 6

// Limiter decides whether a key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// MailQueue accepts messages for asynchronous delivery.
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailer.Message) bool
}

// RecoveryService runs the forgotten-password flow: emailed one-time code,
// release of the PIN-wrapped backup, and a single-use reset.
type RecoveryService struct {
	pool    dbx.Pool
	repos   repomanager.RepositoryManager
	tokens  *auth.Issuer
	mail    MailQueue
	limiter Limiter
	otpTTL  time.Duration
	logger  logging.Logger
	now     func() time.Time
}

func NewRecoveryService(pool dbx.Pool, repos repomanager.RepositoryManager, tokens *auth.Issuer,
	mail MailQueue, limiter Limiter, otpTTL time.Duration,
	logger logging.Logger) *RecoveryService {
	return &RecoveryService{
		pool:    pool,
		repos:   repos,
		tokens:  tokens,
		mail:    mail,
		limiter: limiter,
		otpTTL:  otpTTL,
		logger:  logger.With("module", "recovery"),
		now:     time.Now,
	}
}

func hashOtp(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

// RequestOtp issues a fresh code for email. The outcome is the same whether
// or not the account exists; mail goes out on the dispatcher.
func (s *RecoveryService) RequestOtp(ctx context.Context, email string) error {
	email = common.NormalizeEmail(email)

	if !s.limiter.Allow("send:" + email) {
		return common.ErrTooManyRequests
	}

	code, err := common.RandomDigits(OtpLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	var found bool
	err = s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		found, err = s.repos.Accounts(db).SetOtp(ctx, email, hashOtp(code), s.now().Add(s.otpTTL))
		return err
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if found {
		s.mail.Enqueue(ctx, mailer.OtpMessage(email, code, int(s.otpTTL.Minutes())))
	}
	s.logger.Debug(ctx, "otp requested", "email", email)
	return nil
}

// Recovered is the result of a successful OTP check.
type Recovered struct {
	BackupEnvelope []byte
	ResetToken     string
}

// VerifyOtp checks code for email. Every failure reaches the caller as
// common.ErrRecoveryFailed; the precise reason is only logged. On success
// the code is consumed and a single-use reset token is issued.
func (s *RecoveryService) VerifyOtp(ctx context.Context, email, code string) (*Recovered, error) {
	email = common.NormalizeEmail(email)

	if !s.limiter.Allow("verify:" + email) {
		return nil, common.ErrTooManyRequests
	}

	var account *models.Account
	err := s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		account, err = s.repos.Accounts(db).FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.reject(ctx, email, common.ErrInvalidOtp, "unknown account")
		}
		return nil, fmt.Errorf("verify otp: %w", err)
	}

	now := s.now()
	hash := hashOtp(code)

	switch {
	case account.OtpHash == nil || account.OtpExpiresAt == nil:
		return nil, s.reject(ctx, email, common.ErrInvalidOtp, "no pending code")
	case subtle.ConstantTimeCompare(account.OtpHash, hash) != 1:
		return nil, s.reject(ctx, email, common.ErrInvalidOtp, "code mismatch")
	case !now.Before(*account.OtpExpiresAt):
		return nil, s.reject(ctx, email, common.ErrExpiredOtp, "code expired")
	}

	nonce := uuid.NewString()
	err = s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Accounts(db).ConsumeOtp(ctx, account.ID, hash, now, nonce)
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidOtp) {
			return nil, s.reject(ctx, email, common.ErrInvalidOtp, "code already consumed")
		}
		return nil, fmt.Errorf("consume otp: %w", err)
	}

	token, err := s.tokens.IssueReset(account.ID, nonce)
	if err != nil {
		return nil, fmt.Errorf("issue reset token: %w", err)
	}

	s.logger.Info(ctx, "otp verified", "account_id", account.ID)
	return &Recovered{BackupEnvelope: account.BackupEnvelope, ResetToken: token}, nil
}

func (s *RecoveryService) reject(ctx context.Context, email string, reason error, detail string) error {
	s.logger.Warn(ctx, "otp verification failed", "email", email, "reason", reason.Error(), "detail", detail)
	return common.ErrRecoveryFailed
}

// PasswordReset carries the client's re-keyed account state.
type PasswordReset struct {
	ResetToken        string
	NewSalt           []byte
	NewAuthKey        string
	NewBackupEnvelope []byte
	NewEncryptedVault []byte
}

// ResetPassword redeems a reset token. Credentials, recovery state and the
// vault ciphertext change together or not at all. It returns the new vault
// version.
func (s *RecoveryService) ResetPassword(ctx context.Context, r PasswordReset) (int64, error) {
	claims, err := s.tokens.VerifyReset(r.ResetToken)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	hash, err := hashAuthKey(r.NewAuthKey)
	if err != nil {
		return 0, err
	}

	var version int64
	err = s.pool.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.repos.Accounts(tx)
		if err := accounts.ClearRecovery(ctx, claims.AccountID, claims.ID); err != nil {
			return err
		}
		if err := accounts.UpdateCredentials(ctx, claims.AccountID, models.Credentials{
			KDFSalt:        r.NewSalt,
			AuthKeyHash:    hash,
			BackupEnvelope: r.NewBackupEnvelope,
		}); err != nil {
			return err
		}
		var err error
		version, err = s.repos.Vaults(tx).ReplaceWholesale(ctx, claims.AccountID, r.NewEncryptedVault)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Warn(ctx, "reset token replayed", "account_id", claims.AccountID)
			return 0, common.ErrorUnauthorized
		}
		return 0, fmt.Errorf("reset password: %w", err)
	}

	s.logger.Info(ctx, "password reset", "account_id", claims.AccountID, "version", version)
	return version, nil
}
