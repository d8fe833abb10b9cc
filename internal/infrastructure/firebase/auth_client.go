package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// AuthClient wraps the Firebase Admin auth client with the operations this
// service needs.
type AuthClient struct {
	client *auth.Client
}

func NewAuthClient(client *auth.Client) *AuthClient {
	return &AuthClient{
		client: client,
	}
}

func (f *AuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

// GenerateToken mints a custom token for uid. Development tooling only.
func (f *AuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	token, err := f.client.CustomToken(ctx, uid)
	if err != nil {
		return "", err
	}

	return token, nil
}

// TestConnection probes the auth backend. A not-found response for the probe
// uid still proves the backend answered.
func (f *AuthClient) TestConnection(ctx context.Context) error {
	_, err := f.client.GetUser(ctx, "healthcheck-probe")
	if err != nil && !auth.IsUserNotFound(err) {
		return err
	}
	return nil
}
