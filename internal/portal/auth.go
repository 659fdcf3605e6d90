package portal

import (
	"context"
	"fmt"
	"os"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/components/assert"
	"staypermit/internal/components/telemetry"
	"staypermit/internal/config"
)

const (
	report_authenticator_authenticate = "authenticator.authenticate"
)

type Credential struct {
	Identifier string
	Secret     string
}

func (c Credential) Validate() error {
	if c.Identifier == "" || c.Secret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// CredentialFromEnv reads the credential from the named environment variables,
// it never falls back to a default.
func CredentialFromEnv(env config.Env) (Credential, error) {
	cred := Credential{
		Identifier: os.Getenv(env.Username),
		Secret:     os.Getenv(env.Password),
	}
	err := cred.Validate()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: set %s and %s", err, env.Username, env.Password)
	}
	return cred, nil
}

type Authenticator struct {
	portal    config.Portal
	selectors config.Selectors
	timeout   time.Duration
	waiter    Waiter
	tel       telemetry.API
}

func NewAuthenticator(cfg config.Config, tel telemetry.API) Authenticator {
	assert.NotNil(tel)
	assert.NotEmptyStr(cfg.Portal.LoginURL)
	assert.NotEmptyStr(cfg.Selectors.LoggedIn)
	return Authenticator{
		portal:    cfg.Portal,
		selectors: cfg.Selectors,
		timeout:   cfg.Timeouts.Auth.Std(),
		waiter:    Waiter{Poll: cfg.Timeouts.Poll.Std()},
		tel:       tel,
	}
}

// Authenticate logs in and blocks until the listing view is reachable as a
// logged in user, or the auth timeout elapses.
func (a Authenticator) Authenticate(ctx context.Context, page browser.Page, cred Credential) error {
	err := cred.Validate()
	if err != nil {
		return err
	}

	fail := func(reason string, err error) error {
		authErr := &AuthenticationError{Reason: reason, Err: err}
		a.tel.ReportBroken(report_authenticator_authenticate, authErr)
		return authErr
	}

	err = page.Navigate(ctx, a.portal.LoginURL)
	if err != nil {
		return fail("open login page", err)
	}
	err = a.waiter.Await(ctx, page, a.timeout, AllOf{
		PresenceOf{Selector: a.selectors.Username},
		PresenceOf{Selector: a.selectors.Password},
	})
	if err != nil {
		return fail("login form", err)
	}

	err = page.Fill(ctx, a.selectors.Username, cred.Identifier)
	if err != nil {
		return fail("fill identifier", err)
	}
	err = page.Fill(ctx, a.selectors.Password, cred.Secret)
	if err != nil {
		return fail("fill secret", err)
	}
	err = page.Click(ctx, a.selectors.Submit)
	if err != nil {
		return fail("submit", err)
	}

	// rejected credentials leave the browser on the login page
	err = a.waiter.Await(ctx, page, a.timeout, Not{LocationPrefix{Prefix: a.portal.LoginURL}})
	if err != nil {
		return fail("login redirect", err)
	}
	err = page.Navigate(ctx, a.portal.ListingURL)
	if err != nil {
		return fail("open listing", err)
	}
	err = a.waiter.Await(ctx, page, a.timeout, AllOf{
		LocationPrefix{Prefix: a.portal.ListingURL},
		PresenceOf{Selector: a.selectors.LoggedIn},
	})
	if err != nil {
		return fail("confirm session", err)
	}

	a.tel.ReportDebug("authenticated", a.portal.ListingURL)
	return nil
}
