package transport

import (
	"context"
	"net/http"

	"github.com/example/comment-sync/internal/contract"
)

// Login authenticates and keeps the returned session. The backend sets a
// session cookie; a token in the body is kept as a bearer credential too.
func (c *Client) Login(ctx context.Context, email, password string) (contract.User, error) {
	return c.authCall(ctx, call{
		op: "login", method: http.MethodPost, path: "/auth/login",
		body: contract.LoginRequest{Email: email, Password: password},
	})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (contract.User, error) {
	return c.authCall(ctx, call{
		op: "register", method: http.MethodPost, path: "/auth/register",
		body: contract.RegisterRequest{Name: name, Email: email, Password: password},
	})
}

// Me returns the user behind the current session.
func (c *Client) Me(ctx context.Context) (contract.User, error) {
	return c.authCall(ctx, call{op: "me", method: http.MethodGet, path: "/auth/me"})
}

// Logout ends the server session and always forgets the local token.
func (c *Client) Logout(ctx context.Context) error {
	defer c.SetToken("")
	return c.do(ctx, call{op: "logout", method: http.MethodPost, path: "/auth/logout", optionalData: true})
}

func (c *Client) authCall(ctx context.Context, cl call) (contract.User, error) {
	var out contract.UserData
	cl.out = &out
	cl.keys = []string{"user"}
	if err := c.do(ctx, cl); err != nil {
		return contract.User{}, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	return *out.User, nil
}
