package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
)

func (a *App) Users(ctx context.Context) error {
	if err := a.directory.Refresh(ctx); err != nil {
		return err
	}
	a.printAccounts(a.directory.List())
	return nil
}

func (a *App) Online(ctx context.Context) error {
	if err := a.directory.Refresh(ctx); err != nil {
		return err
	}
	me := a.userName()
	online := slices.DeleteFunc(a.directory.Online(), func(acc models.Account) bool {
		return acc.Username == me
	})
	if len(online) == 0 {
		a.println("Nobody is online")
		return nil
	}
	a.printAccounts(online)
	return nil
}

func (a *App) printAccounts(accounts []models.Account) {
	now := time.Now()
	for _, acc := range accounts {
		a.println(formatAccount(acc, now))
	}
}

// Rename changes the current user's username everywhere: the directory key,
// the session and every group and message that mentions it.
func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.println("Usage: rename <new username>")
		return nil
	}
	oldName := a.userName()

	account, err := a.authService.RenameAccount(ctx, oldName, args[0])
	if err != nil {
		return err
	}
	if err := a.chat.RenameUser(ctx, oldName, account.Username); err != nil {
		return err
	}

	a.setUser(&account)
	a.println(fmt.Sprintf("You are now %s", account.Username))
	return nil
}

func (a *App) Passwd(ctx context.Context) error {
	current, err := a.secret("Current password")
	if err != nil {
		return err
	}
	next, err := a.secret("New password")
	if err != nil {
		return err
	}
	confirm, err := a.secret("Confirm new password")
	if err != nil {
		return err
	}

	if err := a.authService.ChangePassword(ctx, a.userName(), current, next, confirm); err != nil {
		return err
	}
	a.println("Password changed")
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "online" && args[0] != "offline") {
		a.println("Usage: status <online|offline>")
		return nil
	}
	online := args[0] == "online"

	if err := a.authService.UpdateStatus(ctx, a.userName(), online); err != nil {
		return err
	}

	account, ok, err := a.authService.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if ok {
		a.setUser(&account)
	}
	a.println("Status set to " + args[0])
	return nil
}
