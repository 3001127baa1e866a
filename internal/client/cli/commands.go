package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/pinvault/internal/client/client"
	"github.com/dmitrijs2005/pinvault/internal/client/models"
	"github.com/dmitrijs2005/pinvault/internal/client/services"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/dmitrijs2005/pinvault/internal/cryptox"
)

// describe turns service errors into something a user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrInvalidCredential):
		return "invalid email, password or PIN"
	case errors.Is(err, common.ErrVersionConflict):
		return "the vault was changed elsewhere; run sync and try again"
	case errors.Is(err, common.ErrRecoveryFailed):
		return "recovery failed; request a new code and try again"
	case errors.Is(err, common.ErrTooManyRequests):
		return "too many attempts; wait a minute"
	case errors.Is(err, common.ErrTokenExpired):
		return "session expired; log in again"
	case errors.Is(err, common.ErrorUnauthorized):
		return "not authorized; log in again"
	case errors.Is(err, common.ErrConflict):
		return "an account with this email already exists"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable"
	case errors.Is(err, cryptox.ErrDecryptionFailed):
		return "vault could not be decrypted"
	}
	return err.Error()
}

func (a *App) printPIN(pin string) {
	fmt.Fprintln(a.out, "YOUR RECOVERY PIN:", pin)
	fmt.Fprintln(a.out, "Write it down. It is shown only once and is the only way to recover a forgotten password.")
}

func (a *App) Register(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := GetNewPassword("Master password", a.out)
	if err != nil {
		return err
	}

	reg, err := a.auth.Register(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account created. Use 'login' to open it.")
	a.printPIN(reg.PIN)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	last, err := a.auth.LastEmail(ctx)
	if err != nil {
		a.logger.Warn(ctx, "read cached email", "error", err)
	}
	email, err := GetTextWithDefault(a.reader, "Enter email", last, a.out)
	if err != nil {
		return err
	}
	password, err := GetSecret("Master password", a.out)
	if err != nil {
		return err
	}

	s, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if a.session != nil {
		a.session.Close()
	}
	a.session, a.snap = s, nil
	a.setMode(ctx, ModeOnline)
	fmt.Fprintln(a.out, "Logged in as", s.Email)
	return a.Sync(ctx)
}

// Sync re-reads the vault from the server (or the cache when offline).
func (a *App) Sync(ctx context.Context) error {
	snap, err := a.vaults.Load(ctx, a.session)
	if err != nil {
		return err
	}
	a.snap = snap
	if snap.Offline {
		a.setMode(ctx, ModeOffline)
		fmt.Fprintf(a.out, "Server unavailable, showing cached vault (version %d, read-only)\n", snap.Version)
	} else {
		fmt.Fprintf(a.out, "Vault loaded: %d item(s), version %d\n", len(snap.Items), snap.Version)
	}
	return nil
}

func (a *App) items(ctx context.Context) (models.Items, error) {
	if a.snap == nil {
		if err := a.Sync(ctx); err != nil {
			return nil, err
		}
	}
	return a.snap.Items, nil
}

func (a *App) List(ctx context.Context) error {
	items, err := a.items(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Vault is empty")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSITE\tUSERNAME\tURL")
	for _, c := range items.Sorted() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(c.ID), c.Site, c.Username, c.URL)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) Show(ctx context.Context, ref string) error {
	items, err := a.items(ctx)
	if err != nil {
		return err
	}
	i, err := items.Find(ref)
	if err != nil {
		return err
	}
	c := items[i]
	fmt.Fprintf(a.out, "ID:       %s\nSite:     %s\nUsername: %s\nPassword: %s\n", c.ID, c.Site, c.Username, c.Password)
	if c.URL != "" {
		fmt.Fprintf(a.out, "URL:      %s\n", c.URL)
	}
	for _, md := range c.Metadata {
		fmt.Fprintf(a.out, "%s: %s\n", md.Name, md.Value)
	}
	fmt.Fprintf(a.out, "Updated:  %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// mutate applies fn to the latest server copy, retrying lost version races.
func (a *App) mutate(ctx context.Context, fn func(models.Items) (models.Items, error)) error {
	snap, err := a.vaults.Apply(ctx, a.session, services.DefaultApplyAttempts, fn)
	if err != nil {
		return err
	}
	a.snap = snap
	return nil
}

func (a *App) Add(ctx context.Context) error {
	site, err := GetSimpleText(a.reader, "Site", a.out)
	if err != nil {
		return err
	}
	if site == "" {
		return common.ValidationError("site", "is required")
	}
	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	password, err := GetSecret("Password", a.out)
	if err != nil {
		return err
	}
	url, err := GetSimpleText(a.reader, "URL (optional)", a.out)
	if err != nil {
		return err
	}
	lines, err := GetMetadata(a.reader, a.out)
	if err != nil {
		return err
	}
	md, err := models.MetadataFromString(lines)
	if err != nil {
		return err
	}

	c := models.NewCredential(site, username, password, url, md)
	if err := a.mutate(ctx, func(items models.Items) (models.Items, error) {
		return append(items, c), nil
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s), vault version %d\n", site, shortID(c.ID), a.snap.Version)
	return nil
}

func (a *App) Remove(ctx context.Context, ref string) error {
	var removed models.Credential
	if err := a.mutate(ctx, func(items models.Items) (models.Items, error) {
		rest, c, err := items.Remove(ref)
		removed = c
		return rest, err
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %s (%s), vault version %d\n", removed.Site, shortID(removed.ID), a.snap.Version)
	return nil
}

// ChangePassword rotates the master password. The vault is re-read first so
// the replacement carries the newest items.
func (a *App) ChangePassword(ctx context.Context) error {
	oldPassword, err := GetSecret("Current master password", a.out)
	if err != nil {
		return err
	}
	newPassword, err := GetNewPassword("New master password", a.out)
	if err != nil {
		return err
	}

	snap, err := a.vaults.Load(ctx, a.session)
	if err != nil {
		return err
	}
	if snap.Offline {
		return client.ErrUnavailable
	}

	rot, err := a.password.ChangePassword(ctx, a.session, snap.Items, oldPassword, newPassword)
	if rot != nil {
		fmt.Fprintln(a.out, "Master password changed.")
		a.printPIN(rot.PIN)
		snap.Version = rot.Version
		a.snap = snap
	}
	return err
}

func (a *App) Recover(ctx context.Context) error {
	last, _ := a.auth.LastEmail(ctx)
	email, err := GetTextWithDefault(a.reader, "Enter email", last, a.out)
	if err != nil {
		return err
	}
	if err := a.recovery.RequestOtp(ctx, email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If the account exists, a one-time code is on its way.")

	otp, err := GetSimpleText(a.reader, "One-time code", a.out)
	if err != nil {
		return err
	}
	pin, err := GetSecret("Recovery PIN", a.out)
	if err != nil {
		return err
	}

	rec, err := a.recovery.Recover(ctx, email, strings.TrimSpace(otp), pin)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Your master password is:", rec.Password)

	ok, err := Confirm(a.reader, "Set a new master password now?", a.out)
	if err != nil || !ok {
		return err
	}
	newPassword, err := GetNewPassword("New master password", a.out)
	if err != nil {
		return err
	}
	rot, err := a.recovery.ResetPassword(ctx, rec, newPassword)
	if rot != nil {
		fmt.Fprintln(a.out, "Master password reset. Log in with the new password.")
		a.printPIN(rot.PIN)
	}
	return err
}

func (a *App) Logout(ctx context.Context, forget bool) error {
	err := a.auth.Logout(ctx, a.session, forget)
	a.session, a.snap = nil, nil
	if err != nil {
		return err
	}
	if forget {
		fmt.Fprintln(a.out, "Logged out, local cache cleared")
	} else {
		fmt.Fprintln(a.out, "Logged out")
	}
	return nil
}
