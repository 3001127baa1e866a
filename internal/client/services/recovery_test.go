package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRecovery_FullCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, s := e.signUp(t)

	_, err := e.vaults.Apply(ctx, s, 1, func(items models.Items) (models.Items, error) {
		return append(items, models.NewCredential("bank", "alice", "b4nk", "", nil)), nil
	})
	require.NoError(t, err)
	require.NoError(t, e.auth.Logout(ctx, s, false))

	require.NoError(t, e.recovery.RequestOtp(ctx, "ALICE@example.com"))

	rec, err := e.recovery.Recover(ctx, aliceEmail, fakeOtp, reg.PIN)
	require.NoError(t, err)
	require.Equal(t, alicePass, rec.Password)
	require.NotEmpty(t, rec.ResetToken)
	token := rec.ResetToken

	rot, err := e.recovery.ResetPassword(ctx, rec, newPass)
	require.NoError(t, err)
	require.Len(t, rot.PIN, cryptox.PINLength)
	require.Equal(t, int64(3), rot.Version)
	require.Empty(t, rec.ResetToken)

	_, err = e.auth.Login(ctx, aliceEmail, alicePass)
	require.ErrorIs(t, err, common.ErrInvalidCredential)

	s2, err := e.auth.Login(ctx, aliceEmail, newPass)
	require.NoError(t, err)
	defer s2.Close()
	snap, err := e.vaults.Load(ctx, s2)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, "b4nk", snap.Items[0].Password)

	password, ok := cryptox.UnwrapPassword(e.srv.account(aliceEmail).envelope, rot.PIN)
	require.True(t, ok)
	require.Equal(t, newPass, password)

	// The reset token cannot be replayed.
	_, err = e.recovery.ResetPassword(ctx, &Recovered{Email: aliceEmail, Password: newPass, ResetToken: token}, "third password")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRecovery_WrongPin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, _ := e.signUp(t)
	require.NoError(t, e.recovery.RequestOtp(ctx, aliceEmail))

	wrong := "000000"
	if reg.PIN == wrong {
		wrong = "111111"
	}
	_, err := e.recovery.Recover(ctx, aliceEmail, fakeOtp, wrong)
	require.ErrorIs(t, err, common.ErrInvalidCredential)

	// The code was spent by the attempt.
	_, err = e.recovery.Recover(ctx, aliceEmail, fakeOtp, reg.PIN)
	require.ErrorIs(t, err, common.ErrRecoveryFailed)
}

func TestRecovery_WrongOtp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, _ := e.signUp(t)
	require.NoError(t, e.recovery.RequestOtp(ctx, aliceEmail))

	_, err := e.recovery.Recover(ctx, aliceEmail, "999999", reg.PIN)
	require.ErrorIs(t, err, common.ErrRecoveryFailed)
}

func TestRecovery_UnknownAccountLooksTheSame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.recovery.RequestOtp(ctx, "nobody@example.com"))
	_, err := e.recovery.Recover(ctx, "nobody@example.com", fakeOtp, "123456")
	require.ErrorIs(t, err, common.ErrRecoveryFailed)
}

func TestRecovery_InputValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, e.recovery.RequestOtp(ctx, "bad"), common.ErrValidation)

	_, err := e.recovery.Recover(ctx, aliceEmail, fakeOtp, "12ab")
	require.ErrorIs(t, err, common.ErrValidation)
	require.Zero(t, e.srv.count("VerifyOtp"))

	_, err = e.recovery.ResetPassword(ctx, &Recovered{Email: aliceEmail}, newPass)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = e.recovery.ResetPassword(ctx, &Recovered{Email: aliceEmail, Password: newPass, ResetToken: "t"}, newPass)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestRecovery_PasswordChangeCancelsPendingReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, s := e.signUp(t)

	require.NoError(t, e.recovery.RequestOtp(ctx, aliceEmail))
	rec, err := e.recovery.Recover(ctx, aliceEmail, fakeOtp, reg.PIN)
	require.NoError(t, err)

	_, err = e.password.ChangePassword(ctx, s, nil, alicePass, newPass)
	require.NoError(t, err)

	rec.Password = newPass
	_, err = e.recovery.ResetPassword(ctx, rec, "third password")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRecovery_ResetLeavesOtherSessionAndCacheAlone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const bobEmail, bobPass = "bob@example.com", "bob's own master password"

	reg, _ := e.signUp(t)
	require.NoError(t, e.auth.Logout(ctx, nil, false))

	_, err := e.auth.Register(ctx, bobEmail, bobPass)
	require.NoError(t, err)
	bob, err := e.auth.Login(ctx, bobEmail, bobPass)
	require.NoError(t, err)
	defer bob.Close()
	_, err = e.vaults.Apply(ctx, bob, 1, func(items models.Items) (models.Items, error) {
		return append(items, models.NewCredential("mail", "bob", "b0b", "", nil)), nil
	})
	require.NoError(t, err)

	// Alice recovers her account on the machine where bob is logged in.
	require.NoError(t, e.recovery.RequestOtp(ctx, aliceEmail))
	rec, err := e.recovery.Recover(ctx, aliceEmail, fakeOtp, reg.PIN)
	require.NoError(t, err)
	_, err = e.recovery.ResetPassword(ctx, rec, newPass)
	require.NoError(t, err)

	snap, err := e.vaults.Load(ctx, bob)
	require.NoError(t, err)
	require.False(t, snap.Offline)
	require.Len(t, snap.Items, 1)
	require.Equal(t, "b0b", snap.Items[0].Password)

	p, err := e.cache.load(ctx)
	require.NoError(t, err)
	require.Equal(t, bobEmail, p.Email)
	require.Equal(t, e.srv.account(bobEmail).salt, p.Salt)
	require.Equal(t, e.srv.account(bobEmail).vault, p.VaultCiphertext)

	s, err := e.auth.Login(ctx, aliceEmail, newPass)
	require.NoError(t, err)
	s.Close()
}
