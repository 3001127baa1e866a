package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/dmitrijs2005/pinvault/internal/server/auth"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// Session is what a successful login hands back.
type Session struct {
	Token     string
	AccountID string
}

// AccountService covers registration, login, the pre-login salt lookup and
// password change.
type AccountService struct {
	pool       dbx.Pool
	repos      repomanager.RepositoryManager
	tokens     *auth.Issuer
	saltSecret []byte
	logger     logging.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAccountService(pool dbx.Pool, repos repomanager.RepositoryManager, tokens *auth.Issuer,
	saltSecret []byte, logger logging.Logger) *AccountService {
	return &AccountService{
		pool:       pool,
		repos:      repos,
		tokens:     tokens,
		saltSecret: saltSecret,
		logger:     logger.With("module", "accounts"),
	}
}

// bcryptCost is a seam for tests.
var bcryptCost = bcrypt.DefaultCost

func hashAuthKey(authKey string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(authKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash auth key: %w", err)
	}
	return string(h), nil
}

func checkAuthKey(hash, authKey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(authKey)) == nil
}

// burnCompare spends one bcrypt comparison so that an unknown email costs
// the same as a wrong password.
func (s *AccountService) burnCompare(authKey string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword(common.GenerateRandByteArray(32), bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(authKey))
}

// Register creates the account and its vault at version 1 in one transaction.
func (s *AccountService) Register(ctx context.Context, email string, salt []byte, authKey string,
	backupEnvelope, initVault []byte) (string, error) {

	hash, err := hashAuthKey(authKey)
	if err != nil {
		return "", err
	}

	account := &models.Account{
		Email:          common.NormalizeEmail(email),
		KDFSalt:        salt,
		AuthKeyHash:    hash,
		BackupEnvelope: backupEnvelope,
	}

	err = s.pool.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repos.Accounts(tx).Create(ctx, account)
		if err != nil {
			return err
		}
		account = created
		return s.repos.Vaults(tx).Create(ctx, created.ID, initVault)
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return "", common.ErrConflict
		}
		return "", fmt.Errorf("register: %w", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return account.ID, nil
}

// Salt returns the KDF salt for email. Unknown emails get a stable
// pseudo-salt so the endpoint does not reveal which accounts exist.
func (s *AccountService) Salt(ctx context.Context, email string) ([]byte, error) {
	email = common.NormalizeEmail(email)

	var account *models.Account
	err := s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		account, err = s.repos.Accounts(db).FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.pseudoSalt(email), nil
		}
		return nil, fmt.Errorf("salt lookup: %w", err)
	}
	return account.KDFSalt, nil
}

func (s *AccountService) pseudoSalt(email string) []byte {
	mac := hmac.New(sha256.New, s.saltSecret)
	mac.Write([]byte("kdf-salt:"))
	mac.Write([]byte(email))
	return mac.Sum(nil)
}

// Login checks authKey against the stored bcrypt hash and issues a session.
func (s *AccountService) Login(ctx context.Context, email, authKey string) (*Session, error) {
	email = common.NormalizeEmail(email)

	var account *models.Account
	err := s.pool.WithConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		account, err = s.repos.Accounts(db).FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnCompare(authKey)
			return nil, common.ErrInvalidCredential
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if !checkAuthKey(account.AuthKeyHash, authKey) {
		s.logger.Warn(ctx, "login rejected", "account_id", account.ID)
		return nil, common.ErrInvalidCredential
	}

	token, err := s.tokens.IssueSession(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Session{Token: token, AccountID: account.ID}, nil
}

// PasswordChange carries everything the client recomputed under the new
// password.
type PasswordChange struct {
	OldAuthKey        string
	NewSalt           []byte
	NewAuthKey        string
	NewEncryptedVault []byte
	NewBackupEnvelope []byte
}

// ChangePassword re-verifies the old authKey, then swaps salt, auth hash,
// backup envelope and vault ciphertext in one transaction. The account row is
// locked while the old key is checked, so a recovery reset committing at the
// same time is never overwritten. Any pending recovery is cancelled. It
// returns the new vault version.
func (s *AccountService) ChangePassword(ctx context.Context, accountID string, c PasswordChange) (int64, error) {
	hash, err := hashAuthKey(c.NewAuthKey)
	if err != nil {
		return 0, err
	}

	var version int64
	err = s.pool.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.repos.Accounts(tx)

		account, err := accounts.FindByIDForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if !checkAuthKey(account.AuthKeyHash, c.OldAuthKey) {
			return common.ErrInvalidCredential
		}

		if err := accounts.UpdateCredentials(ctx, accountID, models.Credentials{
			KDFSalt:        c.NewSalt,
			AuthKeyHash:    hash,
			BackupEnvelope: c.NewBackupEnvelope,
		}); err != nil {
			return err
		}
		if err := accounts.ClearOtp(ctx, accountID); err != nil {
			return err
		}
		version, err = s.repos.Vaults(tx).ReplaceWholesale(ctx, accountID, c.NewEncryptedVault)
		return err
	})
	switch {
	case errors.Is(err, common.ErrInvalidCredential):
		s.logger.Warn(ctx, "password change rejected", "account_id", accountID)
		return 0, common.ErrInvalidCredential
	case errors.Is(err, common.ErrorUnauthorized):
		return 0, common.ErrorUnauthorized
	case err != nil:
		return 0, fmt.Errorf("change password: %w", err)
	}

	s.logger.Info(ctx, "password changed", "account_id", accountID, "version", version)
	return version, nil
}
