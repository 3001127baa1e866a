package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/dbx"
	"github.com/dmitrijs2005/pinvault/internal/server/mailer"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/pinvault/internal/server/repositories/vaults"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	bcryptCost = bcrypt.MinCost
}

// memStore is an in-memory stand-in for the two tables. memPool gives it
// transaction semantics by snapshotting on WithTx and restoring on error.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	vaults   map[string]models.VaultRecord
	seq      int
	fail     map[string]error

	// beforeTx runs once, ahead of the next WithTx, as a concurrent writer
	// committing first.
	beforeTx func()
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]models.Account{},
		vaults:   map[string]models.VaultRecord{},
		fail:     map[string]error{},
	}
}

func (s *memStore) failing(op string) error {
	return s.fail[op]
}

func (s *memStore) snapshot() (map[string]models.Account, map[string]models.VaultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := make(map[string]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		a[k] = v
	}
	v := make(map[string]models.VaultRecord, len(s.vaults))
	for k, r := range s.vaults {
		v[k] = r
	}
	return a, v
}

func (s *memStore) restore(a map[string]models.Account, v map[string]models.VaultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts, s.vaults = a, v
}

func (s *memStore) account(id string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) vault(id string) models.VaultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vaults[id]
}

type memPool struct{ store *memStore }

func (p *memPool) WithConn(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	return fn(ctx, nil)
}

func (p *memPool) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	p.store.mu.Lock()
	hook := p.store.beforeTx
	p.store.beforeTx = nil
	p.store.mu.Unlock()
	if hook != nil {
		hook()
	}

	a, v := p.store.snapshot()
	defer func() {
		if r := recover(); r != nil {
			p.store.restore(a, v)
			panic(r)
		}
		if err != nil {
			p.store.restore(a, v)
		}
	}()
	return fn(ctx, nil)
}

type memRepoManager struct{ store *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return &memAccounts{m.store} }
func (m *memRepoManager) Vaults(dbx.DBTX) vaults.Repository            { return &memVaults{m.store} }

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if err := r.s.failing("accounts.Create"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.Email == a.Email {
			return nil, common.ErrConflict
		}
	}
	r.s.seq++
	a.ID = fmt.Sprintf("acc-%d", r.s.seq)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.accounts[a.ID] = *a
	return a, nil
}

func (r *memAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *memAccounts) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.FindByID(ctx, id)
}

func (r *memAccounts) UpdateCredentials(ctx context.Context, id string, c models.Credentials) error {
	if err := r.s.failing("accounts.UpdateCredentials"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.KDFSalt, a.AuthKeyHash, a.BackupEnvelope = c.KDFSalt, c.AuthKeyHash, c.BackupEnvelope
	r.s.accounts[id] = a
	return nil
}

func (r *memAccounts) SetOtp(ctx context.Context, email string, otpHash []byte, expiresAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, a := range r.s.accounts {
		if a.Email == email {
			exp := expiresAt
			a.OtpHash, a.OtpExpiresAt = otpHash, &exp
			r.s.accounts[id] = a
			return true, nil
		}
	}
	return false, nil
}

func (r *memAccounts) ConsumeOtp(ctx context.Context, id string, otpHash []byte, now time.Time, resetNonce string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok || a.OtpHash == nil || !bytes.Equal(a.OtpHash, otpHash) || !a.OtpExpiresAt.After(now) {
		return common.ErrInvalidOtp
	}
	nonce := resetNonce
	a.OtpHash, a.OtpExpiresAt, a.ResetNonce = nil, nil, &nonce
	r.s.accounts[id] = a
	return nil
}

func (r *memAccounts) ClearOtp(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.s.accounts[id]
	a.OtpHash, a.OtpExpiresAt, a.ResetNonce = nil, nil, nil
	r.s.accounts[id] = a
	return nil
}

func (r *memAccounts) ClearRecovery(ctx context.Context, id string, resetNonce string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok || a.ResetNonce == nil || *a.ResetNonce != resetNonce {
		return common.ErrorUnauthorized
	}
	a.OtpHash, a.OtpExpiresAt, a.ResetNonce = nil, nil, nil
	r.s.accounts[id] = a
	return nil
}

type memVaults struct{ s *memStore }

func (r *memVaults) Create(ctx context.Context, accountID string, ciphertext []byte) error {
	if err := r.s.failing("vaults.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.vaults[accountID] = models.VaultRecord{AccountID: accountID, Ciphertext: ciphertext, Version: 1}
	return nil
}

func (r *memVaults) Read(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vaults[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &v, nil
}

func (r *memVaults) WriteIfVersion(ctx context.Context, accountID string, ciphertext []byte, expected int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vaults[accountID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if v.Version != expected {
		return 0, &common.VersionConflictError{Current: v.Version}
	}
	v.Ciphertext = ciphertext
	v.Version++
	r.s.vaults[accountID] = v
	return v.Version, nil
}

func (r *memVaults) ReplaceWholesale(ctx context.Context, accountID string, ciphertext []byte) (int64, error) {
	if err := r.s.failing("vaults.ReplaceWholesale"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vaults[accountID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	v.Ciphertext = ciphertext
	v.Version++
	r.s.vaults[accountID] = v
	return v.Version, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (q *recordingQueue) Enqueue(ctx context.Context, msg mailer.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return true
}

func (q *recordingQueue) sent() []mailer.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mailer.Message(nil), q.msgs...)
}

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }
