// Package auth resolves bearer tokens to user ids for the mint endpoint.
package auth

import (
	"context"
	"fmt"

	"github.com/tendant/video-intake/pkg/intake"
)

// Authenticator resolves a bearer token to the id of the user it belongs to.
// A token that is invalid, expired or unknown yields an error matching
// intake.ErrUnauthenticated; any other error means the check itself failed.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", intake.ErrUnauthenticated, fmt.Sprintf(format, args...))
}
