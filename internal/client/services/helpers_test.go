package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/records"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// instance is one client process: its own stores and service graph over a
// possibly shared database file.
type instance struct {
	stores    *client.Stores
	directory *Directory
	auth      AuthService
	chat      *ChatService
}

func newInstance(t *testing.T, dbPath string) *instance {
	t.Helper()
	ctx := context.Background()

	stores, err := client.Open(ctx, client.Options{
		DatabasePath:  dbPath,
		WatchInterval: 10 * time.Millisecond,
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	hasher, err := cryptox.NewHasher(cryptox.AlgorithmSHA256)
	require.NoError(t, err)

	dir := NewDirectory(stores.Records)
	chat := NewChatService(stores.Records, dir, logging.Discard())
	require.NoError(t, chat.Load(ctx))
	require.NoError(t, stores.Watcher.Start(ctx))

	return &instance{
		stores:    stores,
		directory: dir,
		auth:      NewAuthService(dir, stores.Sessions, hasher, logging.Discard(), WithNameCheck(chat.CheckName)),
		chat:      chat,
	}
}

func newTestInstance(t *testing.T) *instance {
	t.Helper()
	return newInstance(t, filepath.Join(t.TempDir(), "chat.db"))
}

func registerReq(username, password string) RegisterRequest {
	return RegisterRequest{
		Username:         username,
		Password:         password,
		ConfirmPassword:  password,
		FirstName:        "",
		LastName:         "",
		SecurityQuestion: "First pet?",
		SecurityAnswer:   "Fluffy",
	}
}

func mustRegister(t *testing.T, inst *instance, username, password string) {
	t.Helper()
	_, err := inst.auth.Register(context.Background(), registerReq(username, password))
	require.NoError(t, err)
}

// fixedClock returns a clock that only moves when advanced.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func keysOf(changes []records.Change) []string {
	return records.Keys(changes)
}
