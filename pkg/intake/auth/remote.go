package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"

	"github.com/tendant/video-intake/pkg/intake"
)

// UserPath is the identity provider endpoint that returns the token's user
const UserPath = "/auth/v1/user"

// Remote asks a hosted identity provider who owns a token by calling
// GET {baseURL}/auth/v1/user with the token and the project api key.
type Remote struct {
	client *resty.Client
}

type remoteUser struct {
	ID string `json:"id"`
}

// NewRemote creates a Remote authenticator.
func NewRemote(baseURL, apiKey string, timeout time.Duration) (*Remote, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("%w: identity provider url and api key are required", intake.ErrConfiguration)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("apikey", apiKey).
			SetTimeout(timeout),
	}, nil
}

func (r *Remote) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", invalid("empty token")
	}

	user := &remoteUser{}
	resp, err := r.client.R().SetContext(ctx).
		SetAuthToken(token).
		SetResult(user).
		Get(UserPath)
	if err != nil {
		return "", fmt.Errorf("identity provider request: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return "", invalid("identity provider rejected token")
	case code != http.StatusOK:
		return "", fmt.Errorf("identity provider answered %d", code)
	}

	if user.ID == "" {
		return "", invalid("identity provider returned no user")
	}
	return user.ID, nil
}
