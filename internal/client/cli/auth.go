package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/linksphere/internal/client/client"
	"github.com/dmitrijs2005/linksphere/internal/common"
)

// getText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getText = GetTextWithDefault
var getPassword = GetPassword

// Register prompts for the new account's details and submits them. The
// password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getText(a.reader, "Enter email", a.email, a.out)
	if err != nil {
		return err
	}
	username, err := getText(a.reader, "Enter username", "", a.out)
	if err != nil {
		return err
	}
	gender, err := getText(a.reader, "Enter gender (male, female, other)", "other", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	out, err := a.api.Register(ctx, client.RegisterInput{
		Email:    email,
		Username: username,
		Password: string(password),
		Gender:   gender,
	})
	if err != nil {
		a.report(err)
		return err
	}

	a.email = out.User.Email
	if out.OTPPending {
		fmt.Fprintln(a.out, "Account created. The verification code is on its way; run 'verify' once it arrives.")
	} else {
		fmt.Fprintln(a.out, "Account created. Check your inbox for the 6-digit code and run 'verify'.")
	}
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	email, err := getText(a.reader, "Enter email", a.email, a.out)
	if err != nil {
		return err
	}
	code, err := getText(a.reader, "Enter verification code", "", a.out)
	if err != nil {
		return err
	}

	if err := a.api.Verify(ctx, email, code); err != nil {
		a.report(err)
		return err
	}

	a.email = email
	fmt.Fprintln(a.out, "Email verified. You can now log in.")
	return nil
}

func (a *App) Resend(ctx context.Context) error {
	email, err := getText(a.reader, "Enter email", a.email, a.out)
	if err != nil {
		return err
	}

	if err := a.api.ResendOTP(ctx, email); err != nil {
		a.report(err)
		return err
	}

	a.email = email
	fmt.Fprintln(a.out, "A new code has been sent.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := getText(a.reader, "Enter email", a.email, a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	account, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		a.report(err)
		return err
	}

	a.email = account.Email
	fmt.Fprintf(a.out, "Welcome, %s!\n", account.Username)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.api.Refresh(ctx); err != nil {
		a.report(err)
		return err
	}
	fmt.Fprintln(a.out, "Session refreshed.")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	account, err := a.api.Me(ctx)
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "ID:       %s\n", account.ID)
	fmt.Fprintf(a.out, "Email:    %s\n", account.Email)
	fmt.Fprintf(a.out, "Username: %s\n", account.Username)
	fmt.Fprintf(a.out, "Gender:   %s\n", account.Gender)
	fmt.Fprintf(a.out, "Status:   %s\n", account.Status)
	if account.VerifiedAt != nil {
		fmt.Fprintf(a.out, "Verified: %s\n", account.VerifiedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// Logout ends the session on the server. Local tokens are dropped even when
// the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil {
		a.report(err)
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// report prints err in a form meant for the person at the terminal.
func (a *App) report(err error) {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintln(a.out, "Error:", apiErr.Message)
		keys := make([]string, 0, len(apiErr.Fields))
		for k := range apiErr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(a.out, "  %s: %s\n", k, apiErr.Fields[k])
		}
	case errors.Is(err, client.ErrUnavailable):
		fmt.Fprintln(a.out, "Error: server unavailable, try again later")
	case errors.Is(err, client.ErrUnauthorized):
		fmt.Fprintln(a.out, "Error: please log in first")
	default:
		fmt.Fprintln(a.out, "Error:", err)
	}
}
