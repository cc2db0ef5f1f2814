package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
)

// Chats lists conversations. The first argument may be a filter (all, users,
// groups); everything else is a search text matched against display names.
func (a *App) Chats(ctx context.Context, args []string) error {
	filter := models.FilterAll
	if len(args) > 0 {
		if f, err := models.ParseFilter(args[0]); err == nil {
			filter = f
			args = args[1:]
		}
	}

	convs, err := a.chat.ListConversations(filter, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		a.println("No conversations")
		return nil
	}

	now := time.Now()
	for _, c := range convs {
		a.println(formatConversation(c, a.userName(), now))
	}
	return nil
}

// Open prints a thread and makes it the open channel, which is re-printed
// when another instance changes it.
func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.println("Usage: open <channel>")
		return nil
	}
	channel := args[0]

	thread, err := a.chat.Thread(channel)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.openChannel = channel
	a.mu.Unlock()

	a.println(a.chat.Resolve(channel).String())
	if len(thread) == 0 {
		a.println("No messages yet")
		return nil
	}
	a.println(formatThread(thread, a.userName(), time.Now()))
	return nil
}

func (a *App) Send(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.println("Usage: send <channel> <text>")
		return nil
	}

	msg, err := a.chat.Send(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}

	a.println(formatMessage(*msg, a.userName(), time.Now()))
	return nil
}

func (a *App) Group(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.println("Usage: group <name> <member...>")
		return nil
	}

	group, err := a.chat.CreateGroup(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	a.println(fmt.Sprintf("Group %s created with %d members", group.Name, len(group.Members)))
	return nil
}
