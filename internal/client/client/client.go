package client

import "context"

// Client is the API surface the CLI depends on. HTTPClient implements it.
type Client interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterOutput, error)
	Verify(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*Account, error)
	Refresh(ctx context.Context) error
	Me(ctx context.Context) (*Account, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	LoggedIn() bool
}
