// Package crmauth manages per-portal CRM credentials: unsealing tokens for
// use, refreshing expired pairs, and persisting rotated credentials.
package crmauth

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/resilience"
	"github.com/sells-group/fitscore-cli/internal/secrets"
	"github.com/sells-group/fitscore-cli/internal/store"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
)

// Rotator binds one portal's credential pair to a CRM client. It installs the
// unsealed access token on the client and exchanges the refresh token when
// the CRM rejects it.
type Rotator struct {
	crm    hubspot.Client
	sealer *secrets.Sealer
	store  store.Store
	log    *zap.Logger

	account *model.Account
}

// NewRotator creates a Rotator for one account.
func NewRotator(crm hubspot.Client, sealer *secrets.Sealer, st store.Store, account *model.Account, log *zap.Logger) *Rotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rotator{crm: crm, sealer: sealer, store: st, log: log, account: account}
}

// Install unseals the stored access token and sets it on the CRM client.
func (r *Rotator) Install() error {
	token, err := r.sealer.Open(r.account.AccessTokenEnc)
	if err != nil {
		return eris.Wrap(err, "crmauth: unseal access token")
	}
	r.crm.SetAccessToken(token)
	return nil
}

// Refresh exchanges the stored refresh token for a new pair, installs the new
// access token on the client, and persists the sealed pair. The new refresh
// token replaces the old one only when the CRM issues one.
func (r *Rotator) Refresh(ctx context.Context) error {
	refresh, err := r.sealer.Open(r.account.RefreshTokenEnc)
	if err != nil {
		return eris.Wrap(err, "crmauth: unseal refresh token")
	}

	pair, err := r.crm.RefreshToken(ctx, refresh)
	if err != nil {
		return eris.Wrapf(err, "crmauth: refresh portal %s", r.account.PortalID)
	}

	r.crm.SetAccessToken(pair.AccessToken)

	accessEnc, err := r.sealer.Seal(pair.AccessToken)
	if err != nil {
		return eris.Wrap(err, "crmauth: seal access token")
	}
	refreshEnc := r.account.RefreshTokenEnc
	if pair.RefreshToken != "" {
		refreshEnc, err = r.sealer.Seal(pair.RefreshToken)
		if err != nil {
			return eris.Wrap(err, "crmauth: seal refresh token")
		}
	}

	if err := r.store.UpdateAccountTokens(ctx, r.account.PortalID, accessEnc, refreshEnc); err != nil {
		return eris.Wrap(err, "crmauth: persist rotated tokens")
	}
	r.account.AccessTokenEnc = accessEnc
	r.account.RefreshTokenEnc = refreshEnc

	r.log.Info("rotated portal credentials", zap.String("portal_id", r.account.PortalID))
	return nil
}

// Authed runs fn with refresh-and-retry-once semantics: an auth-expired
// failure triggers one token refresh and one retry, anything else propagates.
func Authed[T any](ctx context.Context, r *Rotator, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.WithRefresh(ctx, hubspot.IsAuthExpired, r.Refresh, fn)
}
