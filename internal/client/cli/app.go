package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/config"
	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/services"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const teardownTimeout = 5 * time.Second

// chatEngine is the part of services.ChatService the CLI drives.
type chatEngine interface {
	SetCurrentUser(account models.Account)
	ListConversations(filter models.Filter, search string) ([]models.Conversation, error)
	Thread(channel string) ([]models.Message, error)
	Resolve(channel string) models.Channel
	Send(ctx context.Context, channel, text string) (*models.Message, error)
	CreateGroup(ctx context.Context, name string, members []string) (*models.Group, error)
	RenameUser(ctx context.Context, oldName, newName string) error
	Subscribe() (<-chan services.StaleEvent, func())
}

// userDirectory is the read side of services.Directory.
type userDirectory interface {
	Refresh(ctx context.Context) error
	List() []models.Account
	Online() []models.Account
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	stores      *client.Stores
	authService services.AuthService
	chat        chatEngine
	directory   userDirectory
	watch       func(ctx context.Context) error
	reader      *bufio.Reader
	out         io.Writer

	outMu sync.Mutex

	mu          sync.Mutex
	user        *models.Account
	openChannel string
}

// NewApp opens the stores and builds the service graph of one instance.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	stores, err := client.Open(ctx, client.Options{
		DatabasePath:       c.DatabasePath,
		WatchInterval:      c.WatchInterval,
		ChangeLogRetention: c.ChangeLogRetention,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	hasher, err := cryptox.NewHasher(c.HashAlgorithm)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	logger = logger.With("instance", stores.Origin)
	directory := services.NewDirectory(stores.Records)
	chat := services.NewChatService(stores.Records, directory, logger)
	// the cursor goes first so writes landing during Load are still reported
	if err := stores.Watcher.Start(ctx); err != nil {
		_ = stores.Close()
		return nil, err
	}
	if err := chat.Load(ctx); err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("error loading conversations: %w", err)
	}

	return &App{
		config:      c,
		logger:      logger,
		stores:      stores,
		authService: services.NewAuthService(directory, stores.Sessions, hasher, logger, services.WithNameCheck(chat.CheckName)),
		chat:        chat,
		directory:   directory,
		watch: func(ctx context.Context) error {
			return chat.Watch(ctx, stores.Watcher)
		},
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Run starts the background watcher and the REPL, and tears the instance
// down once the user leaves: the logged-in user is marked offline and the
// stores are closed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if a.watch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error(ctx, "change watcher stopped", "error", err)
			}
		}()
	}

	events, unsubscribe := a.chat.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			a.onStale(ev)
		}
	}()

	a.println("Welcome to GophChat (type 'help' for commands)")

	// a blocked stdin read must not hold up shutdown on a signal
	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.status, a.reader)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	cancel()
	unsubscribe()
	wg.Wait()

	return a.teardown()
}

func (a *App) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var errs []error
	if user := a.currentUser(); user != nil {
		errs = append(errs, a.authService.UpdateStatus(ctx, user.Username, false))
	}
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	return errors.Join(errs...)
}

// onStale reacts to another instance's write.
func (a *App) onStale(ev services.StaleEvent) {
	a.mu.Lock()
	channel := a.openChannel
	loggedIn := a.user != nil
	a.mu.Unlock()

	if !loggedIn {
		return
	}

	if channel != "" && ev.Key != services.GroupsKey {
		thread, err := a.chat.Thread(channel)
		if err != nil {
			return
		}
		a.println(fmt.Sprintf("-- %s updated --", channel))
		a.println(formatThread(thread, a.userName(), time.Now()))
		return
	}

	a.println(fmt.Sprintf("(%s changed in another window, type 'chats' to refresh)", describeKey(ev.Key)))
}

func (a *App) isLoggedIn() bool {
	return a.currentUser() != nil
}

func (a *App) currentUser() *models.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

func (a *App) userName() string {
	if u := a.currentUser(); u != nil {
		return u.Username
	}
	return ""
}

func (a *App) setUser(account *models.Account) {
	a.mu.Lock()
	a.user = account
	if account == nil {
		a.openChannel = ""
	}
	a.mu.Unlock()

	if account == nil {
		a.chat.SetCurrentUser(models.Account{})
		return
	}
	a.chat.SetCurrentUser(*account)
}

func (a *App) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return ""
	}
	if a.openChannel != "" {
		return fmt.Sprintf("(%s > %s)", a.user.Username, a.openChannel)
	}
	return fmt.Sprintf("(%s)", a.user.Username)
}

func (a *App) println(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, s)
}
