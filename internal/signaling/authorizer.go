package signaling

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
)

// Authorizer decides whether a WebSocket may join the relay.
//
// Authorize is called once with the upgrade request and a nil credential. If
// it returns an error matching auth.ErrMissingCredentials the server waits for
// an `auth` frame and calls it again with that frame's credential.
type Authorizer interface {
	Authorize(r *http.Request, credential *string) error
}

type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(*http.Request, *string) error { return nil }

// AuthAuthorizer enforces AUTH_MODE. Credentials are taken from the `auth`
// frame when one was sent, otherwise from headers and then the query string.
type AuthAuthorizer struct {
	mode     config.AuthMode
	verifier auth.Verifier
}

func NewAuthAuthorizer(cfg config.Config) (Authorizer, error) {
	if cfg.AuthMode == config.AuthModeNone {
		return AllowAllAuthorizer{}, nil
	}
	v, err := auth.NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return AuthAuthorizer{mode: cfg.AuthMode, verifier: v}, nil
}

func (a AuthAuthorizer) Authorize(r *http.Request, credential *string) error {
	if a.verifier == nil {
		return errors.New("auth verifier not configured")
	}
	var cred string
	if credential != nil && strings.TrimSpace(*credential) != "" {
		cred = strings.TrimSpace(*credential)
	} else {
		var err error
		cred, err = auth.CredentialFromRequest(a.mode, r)
		if err != nil {
			return err
		}
	}
	return a.verifier.Verify(cred)
}

func isAuthMissing(err error) bool {
	return errors.Is(err, auth.ErrMissingCredentials)
}

// unauthorizedMessage keeps configuration details out of client-visible
// errors.
func unauthorizedMessage(err error) string {
	if errors.Is(err, auth.ErrMissingCredentials) {
		return "missing credentials"
	}
	return "unauthorized"
}
