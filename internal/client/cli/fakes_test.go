package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/services"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

func init() {
	color.NoColor = true
}

// stubInputs feeds prompts from texts and hidden prompts from secrets, in
// order. Each secret is handed out as a fresh slice since callers wipe it.
func stubInputs(t *testing.T, texts []string, secrets []string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) {
		if len(texts) == 0 {
			return "", io.EOF
		}
		s := texts[0]
		texts = texts[1:]
		return s, nil
	}
	getPassword = func(_ string, _ io.Writer) ([]byte, error) {
		if len(secrets) == 0 {
			return nil, io.EOF
		}
		s := secrets[0]
		secrets = secrets[1:]
		return []byte(s), nil
	}
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

type fakeAuth struct {
	calls []string

	regReq    services.RegisterRequest
	account   models.Account
	err       error
	verifyErr error

	loginUser, loginPass string
	question             string
	answer               string
	resetPass            string
	statusOnline         *bool
	changeArgs           []string
	renameTo             string
	loggedIn             bool
}

func (f *fakeAuth) Register(_ context.Context, req services.RegisterRequest) (models.Account, error) {
	f.calls = append(f.calls, "register")
	f.regReq = req
	return models.Account{Username: req.Username}, f.err
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (models.Account, error) {
	f.calls = append(f.calls, "login")
	f.loginUser, f.loginPass = username, password
	if f.err != nil {
		return models.Account{}, f.err
	}
	f.loggedIn = true
	return f.account, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.calls = append(f.calls, "logout")
	f.loggedIn = false
	return f.err
}

func (f *fakeAuth) CurrentUser(context.Context) (models.Account, bool, error) {
	f.calls = append(f.calls, "current")
	return f.account, f.loggedIn, f.err
}

func (f *fakeAuth) SecurityQuestion(_ context.Context, username string) (string, error) {
	f.calls = append(f.calls, "question")
	return f.question, f.err
}

func (f *fakeAuth) VerifySecurityAnswer(_ context.Context, username, answer string) error {
	f.calls = append(f.calls, "verify")
	f.answer = answer
	return f.verifyErr
}

func (f *fakeAuth) ResetPassword(_ context.Context, username, newPassword string) error {
	f.calls = append(f.calls, "reset")
	f.resetPass = newPassword
	return f.err
}

func (f *fakeAuth) UpdateStatus(_ context.Context, username string, online bool) error {
	f.calls = append(f.calls, "status")
	f.statusOnline = &online
	f.account.IsOnline = online
	return f.err
}

func (f *fakeAuth) ChangePassword(_ context.Context, username, current, next, confirm string) error {
	f.calls = append(f.calls, "passwd")
	f.changeArgs = []string{username, current, next, confirm}
	return f.err
}

func (f *fakeAuth) RenameAccount(_ context.Context, oldUsername, newUsername string) (models.Account, error) {
	f.calls = append(f.calls, "rename")
	f.renameTo = newUsername
	if f.err != nil {
		return models.Account{}, f.err
	}
	f.account.Username = newUsername
	return f.account, nil
}

type fakeChat struct {
	current models.Account

	conversations []models.Conversation
	filter        models.Filter
	search        string

	thread  []models.Message
	groups  map[string]bool
	sent    []models.Message
	created *models.Group
	renamed []string
	err     error

	events chan services.StaleEvent
}

func (f *fakeChat) SetCurrentUser(account models.Account) { f.current = account }

func (f *fakeChat) ListConversations(filter models.Filter, search string) ([]models.Conversation, error) {
	f.filter, f.search = filter, search
	return f.conversations, f.err
}

func (f *fakeChat) Thread(string) ([]models.Message, error) { return f.thread, f.err }

func (f *fakeChat) Resolve(channel string) models.Channel {
	if f.groups[channel] {
		return models.Channel{Kind: models.ChannelGroup, Name: channel}
	}
	return models.Channel{Kind: models.ChannelUser, Name: channel}
}

func (f *fakeChat) Send(_ context.Context, channel, text string) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := models.Message{ID: int64(len(f.sent) + 1), Sender: f.current.Username, Receiver: channel, Text: text}
	f.sent = append(f.sent, m)
	return &m, nil
}

func (f *fakeChat) CreateGroup(_ context.Context, name string, members []string) (*models.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &models.Group{Name: name, Members: append(members, f.current.Username), Admin: f.current.Username}
	return f.created, nil
}

func (f *fakeChat) RenameUser(_ context.Context, oldName, newName string) error {
	f.renamed = []string{oldName, newName}
	return f.err
}

func (f *fakeChat) Subscribe() (<-chan services.StaleEvent, func()) {
	if f.events == nil {
		f.events = make(chan services.StaleEvent)
	}
	return f.events, func() { close(f.events) }
}

type fakeDirectory struct {
	accounts  []models.Account
	refreshed int
	err       error
}

func (f *fakeDirectory) Refresh(context.Context) error {
	f.refreshed++
	return f.err
}

func (f *fakeDirectory) List() []models.Account { return f.accounts }

func (f *fakeDirectory) Online() []models.Account {
	var out []models.Account
	for _, a := range f.accounts {
		if a.IsOnline {
			out = append(out, a)
		}
	}
	return out
}

type testApp struct {
	*App
	auth *fakeAuth
	chat *fakeChat
	dir  *fakeDirectory
	out  *bytes.Buffer
}

func newTestApp() *testApp {
	ta := &testApp{
		auth: &fakeAuth{},
		chat: &fakeChat{},
		dir:  &fakeDirectory{},
		out:  &bytes.Buffer{},
	}
	ta.App = &App{
		logger:      logging.Discard(),
		authService: ta.auth,
		chat:        ta.chat,
		directory:   ta.dir,
		out:         ta.out,
	}
	return ta
}

func (ta *testApp) login(account models.Account) {
	ta.auth.account = account
	ta.auth.loggedIn = true
	ta.setUser(&account)
}
