// Package services contains the application services of the GophChat client.
// This file defines the authentication service: registration, login/logout,
// security-question recovery, presence and profile changes.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// SessionKey holds the logged-in account in the session store.
const SessionKey = "loggedInUser"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Username         string
	Password         string
	ConfirmPassword  string
	FirstName        string
	LastName         string
	SecurityQuestion string
	SecurityAnswer   string
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register validates the form, hashes the secrets and stores the account.
//   - Login verifies credentials, marks the account online and opens a session.
//   - Logout marks the account offline and always closes the session.
//   - Recovery runs SecurityQuestion, VerifySecurityAnswer, ResetPassword.
//
// Every write is persisted before the method returns.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (models.Account, error)
	Login(ctx context.Context, username, password string) (models.Account, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (models.Account, bool, error)

	SecurityQuestion(ctx context.Context, username string) (string, error)
	VerifySecurityAnswer(ctx context.Context, username, answer string) error
	ResetPassword(ctx context.Context, username, newPassword string) error

	UpdateStatus(ctx context.Context, username string, online bool) error
	ChangePassword(ctx context.Context, username, current, next, confirm string) error
	RenameAccount(ctx context.Context, oldUsername, newUsername string) (models.Account, error)
}

type authService struct {
	directory *Directory
	sessions  session.Repository
	hasher    *cryptox.Hasher
	logger    logging.Logger
	now       func() time.Time
	checkName func(ctx context.Context, name string) error
}

type AuthOption func(*authService)

// WithNameCheck makes registration and renames consult check before a
// username is taken. ChatService.CheckName rejects group names.
func WithNameCheck(check func(ctx context.Context, name string) error) AuthOption {
	return func(a *authService) { a.checkName = check }
}

// NewAuthService constructs an AuthService over the shared directory and the
// instance's own session store.
func NewAuthService(directory *Directory, sessions session.Repository, hasher *cryptox.Hasher, logger logging.Logger, opts ...AuthOption) AuthService {
	a := &authService{
		directory: directory,
		sessions:  sessions,
		hasher:    hasher,
		logger:    logger,
		now:       time.Now,
		checkName: func(context.Context, string) error { return nil },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *authService) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return models.Account{}, common.ErrEmptyUsername
	}

	if err := a.directory.Refresh(ctx); err != nil {
		return models.Account{}, err
	}
	if _, ok := a.directory.Find(username); ok {
		return models.Account{}, common.ErrDuplicateUsername
	}
	if err := a.checkName(ctx, username); err != nil {
		return models.Account{}, err
	}
	if len(req.Password) < MinPasswordLength {
		return models.Account{}, common.ErrWeakPassword
	}
	if req.Password != req.ConfirmPassword {
		return models.Account{}, common.ErrPasswordMismatch
	}

	question := strings.TrimSpace(req.SecurityQuestion)
	answer := cryptox.NormalizeAnswer(req.SecurityAnswer)
	if question == "" || answer == "" {
		return models.Account{}, common.ErrMissingSecurityInfo
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	account := models.Account{
		Username:             username,
		PasswordDigest:       a.hasher.Hash(req.Password, salt),
		Salt:                 salt,
		FirstName:            strings.TrimSpace(req.FirstName),
		LastName:             strings.TrimSpace(req.LastName),
		SecurityQuestion:     question,
		SecurityAnswerDigest: a.hasher.Hash(answer, salt),
	}

	if err := a.directory.Create(ctx, account); err != nil {
		return models.Account{}, err
	}

	a.logger.Info(ctx, "account registered", "username", username)
	return account, nil
}

func (a *authService) Login(ctx context.Context, username, password string) (models.Account, error) {
	if err := a.directory.Refresh(ctx); err != nil {
		return models.Account{}, err
	}

	account, ok := a.directory.Find(strings.TrimSpace(username))
	if !ok || !a.hasher.Verify(password, account.Salt, account.PasswordDigest) {
		return models.Account{}, common.ErrInvalidCredentials
	}

	now := a.now()
	updated, ok, err := a.directory.Update(ctx, account.Username, models.AccountPatch{
		IsOnline: models.Ptr(true),
		LastSeen: &now,
	})
	if err != nil {
		return models.Account{}, err
	}
	if !ok {
		return models.Account{}, common.ErrInvalidCredentials
	}

	if err := a.writeSession(ctx, updated); err != nil {
		return models.Account{}, err
	}

	a.logger.Info(ctx, "user logged in", "username", updated.Username)
	return updated, nil
}

func (a *authService) Logout(ctx context.Context) error {
	current, ok, err := a.CurrentUser(ctx)
	if err != nil || !ok {
		return errors.Join(err, a.sessions.Delete(ctx, SessionKey))
	}

	now := a.now()
	_, _, updateErr := a.directory.Update(ctx, current.Username, models.AccountPatch{
		IsOnline: models.Ptr(false),
		LastSeen: &now,
	})

	if err := errors.Join(updateErr, a.sessions.Delete(ctx, SessionKey)); err != nil {
		return err
	}

	a.logger.Info(ctx, "user logged out", "username", current.Username)
	return nil
}

func (a *authService) CurrentUser(ctx context.Context) (models.Account, bool, error) {
	raw, err := a.sessions.Get(ctx, SessionKey)
	if err != nil {
		return models.Account{}, false, err
	}
	if raw == nil {
		return models.Account{}, false, nil
	}

	var account models.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return models.Account{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return account, true, nil
}

func (a *authService) SecurityQuestion(ctx context.Context, username string) (string, error) {
	account, err := a.lookup(ctx, username)
	if err != nil {
		return "", err
	}
	if !account.HasSecurityQuestion() {
		return "", common.ErrNoSecurityQuestion
	}
	return account.SecurityQuestion, nil
}

func (a *authService) VerifySecurityAnswer(ctx context.Context, username, answer string) error {
	account, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	if !account.HasSecurityQuestion() {
		return common.ErrNoSecurityQuestion
	}
	if !a.hasher.Verify(cryptox.NormalizeAnswer(answer), account.AnswerSalt(), account.SecurityAnswerDigest) {
		return common.ErrIncorrectAnswer
	}
	return nil
}

// ResetPassword replaces the password digest under a fresh salt. The answer
// digest stays valid because its salt is pinned separately.
func (a *authService) ResetPassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return common.ErrWeakPassword
	}

	account, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	patch := models.AccountPatch{
		Salt:           &salt,
		PasswordDigest: models.Ptr(a.hasher.Hash(newPassword, salt)),
	}
	if account.SecurityAnswerDigest != "" {
		patch.SecurityAnswerSalt = models.Ptr(account.AnswerSalt())
	}

	updated, ok, err := a.directory.Update(ctx, account.Username, patch)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUserNotFound
	}

	a.logger.Info(ctx, "password reset", "username", updated.Username)
	return a.refreshSession(ctx, account.Username, updated)
}

func (a *authService) UpdateStatus(ctx context.Context, username string, online bool) error {
	now := a.now()
	updated, ok, err := a.directory.Update(ctx, username, models.AccountPatch{
		IsOnline: &online,
		LastSeen: &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUserNotFound
	}
	return a.refreshSession(ctx, username, updated)
}

func (a *authService) ChangePassword(ctx context.Context, username, current, next, confirm string) error {
	if current == "" || next == "" || confirm == "" {
		return common.ErrMissingFields
	}

	account, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	if !a.hasher.Verify(current, account.Salt, account.PasswordDigest) {
		return common.ErrIncorrectPassword
	}
	if next != confirm {
		return common.ErrPasswordMismatch
	}
	return a.ResetPassword(ctx, username, next)
}

func (a *authService) RenameAccount(ctx context.Context, oldUsername, newUsername string) (models.Account, error) {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return models.Account{}, common.ErrEmptyUsername
	}
	if newUsername != oldUsername {
		if err := a.checkName(ctx, newUsername); err != nil {
			return models.Account{}, err
		}
	}

	updated, ok, err := a.directory.Update(ctx, oldUsername, models.AccountPatch{Username: &newUsername})
	if err != nil {
		return models.Account{}, err
	}
	if !ok {
		return models.Account{}, common.ErrUserNotFound
	}

	if err := a.refreshSession(ctx, oldUsername, updated); err != nil {
		return models.Account{}, err
	}

	a.logger.Info(ctx, "account renamed", "from", oldUsername, "to", newUsername)
	return updated, nil
}

// lookup reads the directory afresh and returns the named account.
func (a *authService) lookup(ctx context.Context, username string) (models.Account, error) {
	if err := a.directory.Refresh(ctx); err != nil {
		return models.Account{}, err
	}
	account, ok := a.directory.Find(strings.TrimSpace(username))
	if !ok {
		return models.Account{}, common.ErrUserNotFound
	}
	return account, nil
}

// refreshSession rewrites the session copy when it belongs to username.
func (a *authService) refreshSession(ctx context.Context, username string, updated models.Account) error {
	current, ok, err := a.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if !ok || current.Username != username {
		return nil
	}
	return a.writeSession(ctx, updated)
}

func (a *authService) writeSession(ctx context.Context, account models.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return a.sessions.Set(ctx, SessionKey, raw)
}
