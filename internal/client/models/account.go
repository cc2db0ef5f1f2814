// Package models defines the client-side data shapes shared by the
// repositories, services and CLI of GophChat.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Account is a registered user as persisted in the user directory.
type Account struct {
	Username       string `json:"username"`
	PasswordDigest string `json:"passwordDigest,omitempty"`
	Salt           string `json:"salt,omitempty"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	SecurityQuestion     string `json:"securityQuestion,omitempty"`
	SecurityAnswerDigest string `json:"securityAnswerDigest,omitempty"`
	// SecurityAnswerSalt is the salt the answer digest was produced with. It
	// differs from Salt once the password has been reset; empty means Salt.
	SecurityAnswerSalt string `json:"securityAnswerSalt,omitempty"`

	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen,omitzero"`
}

// DisplayName is "First Last" when either part is set, else the username.
func (a Account) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if name == "" {
		return a.Username
	}
	return name
}

// Initials returns up to two upper-case letters for avatars and listings.
func (a Account) Initials() string {
	return Initials(a.DisplayName())
}

// AnswerSalt returns the salt to verify the security answer against.
func (a Account) AnswerSalt() string {
	if a.SecurityAnswerSalt != "" {
		return a.SecurityAnswerSalt
	}
	return a.Salt
}

// HasSecurityQuestion reports whether password recovery is possible.
func (a Account) HasSecurityQuestion() bool {
	return a.SecurityQuestion != "" && a.SecurityAnswerDigest != ""
}

// AccountPatch lists the fields to merge into an existing account. Nil
// fields are left untouched.
type AccountPatch struct {
	Username           *string
	PasswordDigest     *string
	Salt               *string
	FirstName          *string
	LastName           *string
	SecurityAnswerSalt *string
	IsOnline           *bool
	LastSeen           *time.Time
}

// Apply returns a copy of a with the patch merged in.
func (p AccountPatch) Apply(a Account) Account {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.PasswordDigest != nil {
		a.PasswordDigest = *p.PasswordDigest
	}
	if p.Salt != nil {
		a.Salt = *p.Salt
	}
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.SecurityAnswerSalt != nil {
		a.SecurityAnswerSalt = *p.SecurityAnswerSalt
	}
	if p.IsOnline != nil {
		a.IsOnline = *p.IsOnline
	}
	if p.LastSeen != nil {
		a.LastSeen = *p.LastSeen
	}
	return a
}

// legacyAccount covers field names written by older clients.
type legacyAccount struct {
	Account
	FName string `json:"fName"`
	LName string `json:"lName"`
}

// DecodeAccount parses one stored account and folds legacy field names into
// the canonical shape. A plain-text "password" field is never carried over.
func DecodeAccount(raw []byte) (Account, error) {
	var l legacyAccount
	if err := json.Unmarshal(raw, &l); err != nil {
		return Account{}, err
	}

	acc := l.Account
	if acc.FirstName == "" {
		acc.FirstName = l.FName
	}
	if acc.LastName == "" {
		acc.LastName = l.LName
	}
	return acc, nil
}

// Initials returns the first letters of the first two words of name,
// upper-cased. A single word gives its first two letters.
func Initials(name string) string {
	words := strings.Fields(name)
	var out []rune
	switch len(words) {
	case 0:
		return ""
	case 1:
		out = []rune(words[0])
		if len(out) > 2 {
			out = out[:2]
		}
	default:
		out = []rune{[]rune(words[0])[0], []rune(words[1])[0]}
	}
	return strings.ToUpper(string(out))
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }
