package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context, args []string) error
	Forgot(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Users(ctx context.Context) error
	Online(ctx context.Context) error
	Chats(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Send(ctx context.Context, args []string) error
	Group(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Passwd(ctx context.Context) error
	Status(ctx context.Context, args []string) error
}

const (
	helpAnonymous = "Available commands: register, login [username], forgot, exit"
	helpLoggedIn  = "Available commands: chats [all|users|groups] [search], open <channel>, " +
		"send <channel> <text>, group <name> <member...>, users, online, whoami, " +
		"status <online|offline>, rename <username>, passwd, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the GophChat CLI.
//
// It reads a line from reader, parses the first token as the command and
// dispatches the remaining tokens to methods on 'a'. Commands that need a
// session are refused until the user logs in. The loop exits on EOF, on
// context cancellation, or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed verbatim and the loop
// keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("gc %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		if err := dispatch(ctx, a, cmd, args); err != nil {
			printlnFn("Error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn(helpLoggedIn)
		} else {
			printlnFn(helpAnonymous)
		}
		return nil
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx, args)
	case "forgot":
		return a.Forgot(ctx)
	}

	if !a.isLoggedIn() {
		switch cmd {
		case "logout", "whoami", "users", "online", "chats", "open", "send", "group", "rename", "passwd", "status":
			printlnFn("Please log in first")
		default:
			printlnFn("Unknown command:", cmd)
		}
		return nil
	}

	switch cmd {
	case "logout":
		return a.Logout(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "users":
		return a.Users(ctx)
	case "online":
		return a.Online(ctx)
	case "chats", "l":
		return a.Chats(ctx, args)
	case "open":
		return a.Open(ctx, args)
	case "send":
		return a.Send(ctx, args)
	case "group":
		return a.Group(ctx, args)
	case "rename":
		return a.Rename(ctx, args)
	case "passwd":
		return a.Passwd(ctx)
	case "status":
		return a.Status(ctx, args)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
