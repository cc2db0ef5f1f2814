package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/client/services"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) prompt(text string) (string, error) {
	return getSimpleText(a.reader, text, a.out)
}

// secret reads a hidden value and returns it as a string, wiping the buffer.
func (a *App) secret(text string) (string, error) {
	pw, err := getPassword(text, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// Register walks the user through the registration form and creates the
// account. It does not log the user in.
func (a *App) Register(ctx context.Context) error {
	var (
		req services.RegisterRequest
		err error
	)

	if req.Username, err = a.prompt("Choose a username"); err != nil {
		return err
	}
	if req.Password, err = a.secret("Password (at least 6 characters)"); err != nil {
		return err
	}
	if req.ConfirmPassword, err = a.secret("Confirm password"); err != nil {
		return err
	}
	if req.FirstName, err = a.prompt("First name (optional)"); err != nil {
		return err
	}
	if req.LastName, err = a.prompt("Last name (optional)"); err != nil {
		return err
	}
	if req.SecurityQuestion, err = a.prompt("Security question (used to recover your password)"); err != nil {
		return err
	}
	if req.SecurityAnswer, err = a.secret("Answer"); err != nil {
		return err
	}

	account, err := a.authService.Register(ctx, req)
	if err != nil {
		return err
	}

	a.println(fmt.Sprintf("Account %s created. Type 'login' to sign in.", account.Username))
	return nil
}

// Login authenticates the user and binds the conversation engine to them.
// The username may be passed as the first argument.
func (a *App) Login(ctx context.Context, args []string) error {
	if a.isLoggedIn() {
		a.println("Already logged in as " + a.userName() + ", log out first")
		return nil
	}

	var (
		username string
		err      error
	)
	if len(args) > 0 {
		username = args[0]
	} else if username, err = a.prompt("Username"); err != nil {
		return err
	}

	password, err := a.secret("Password")
	if err != nil {
		return err
	}

	account, err := a.authService.Login(ctx, username, password)
	if err != nil {
		return err
	}

	a.setUser(&account)
	a.println(fmt.Sprintf("Welcome, %s!", account.DisplayName()))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.authService.Logout(ctx)
	a.setUser(nil)
	if err != nil {
		return err
	}
	a.println("Logged out")
	return nil
}

// Forgot runs the password recovery flow: username, security answer, then
// the new password.
func (a *App) Forgot(ctx context.Context) error {
	username, err := a.prompt("Username")
	if err != nil {
		return err
	}

	question, err := a.authService.SecurityQuestion(ctx, username)
	if err != nil {
		return err
	}

	answer, err := a.secret(question)
	if err != nil {
		return err
	}
	if err := a.authService.VerifySecurityAnswer(ctx, username, answer); err != nil {
		return err
	}

	password, err := a.secret("New password")
	if err != nil {
		return err
	}
	confirm, err := a.secret("Confirm new password")
	if err != nil {
		return err
	}
	if password != confirm {
		return common.ErrPasswordMismatch
	}

	if err := a.authService.ResetPassword(ctx, username, password); err != nil {
		return err
	}

	a.println("Password updated. You can now log in.")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	account, ok, err := a.authService.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if !ok {
		a.println("Not logged in")
		return nil
	}
	a.println(formatProfile(account))
	return nil
}
