package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests use a stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Recover(ctx context.Context) error
	List(ctx context.Context) error
	Add(ctx context.Context) error
	Show(ctx context.Context, ref string) error
	Remove(ctx context.Context, ref string) error
	Sync(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Logout(ctx context.Context, forget bool) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit".
//
//	Not logged in:  register, login, recover, help, exit
//	Logged in:      list, add, show <ref>, remove <ref>, sync, passwd,
//	                logout [--forget], help, exit
//
// Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "pv %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch {
		case cmd == "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, "Available commands: (l)ist, add, show <ref>, (rm) remove <ref>, sync, passwd, logout [--forget], exit")
			} else {
				fmt.Fprintln(out, "Available commands: register, login, recover, exit")
			}

		case cmd == "exit" || cmd == "quit":
			fmt.Fprintln(out, "Bye!")
			return

		case cmd == "register":
			cmdErr = a.Register(ctx)
		case cmd == "login":
			cmdErr = a.Login(ctx)
		case cmd == "recover" && a.isLoggedIn():
			fmt.Fprintln(out, "Please log out before recovering an account")
		case cmd == "recover":
			cmdErr = a.Recover(ctx)

		case !a.isLoggedIn() && isSessionCommand(cmd):
			fmt.Fprintln(out, "Please log in first")

		case cmd == "l" || cmd == "list":
			cmdErr = a.List(ctx)
		case cmd == "add":
			cmdErr = a.Add(ctx)
		case cmd == "show" || cmd == "remove" || cmd == "rm":
			if len(args) != 1 {
				fmt.Fprintf(out, "Usage: %s <id|site>\n", cmd)
				continue
			}
			if cmd == "show" {
				cmdErr = a.Show(ctx, args[0])
			} else {
				cmdErr = a.Remove(ctx, args[0])
			}
		case cmd == "sync":
			cmdErr = a.Sync(ctx)
		case cmd == "passwd":
			cmdErr = a.ChangePassword(ctx)
		case cmd == "logout":
			cmdErr = a.Logout(ctx, len(args) > 0 && args[0] == "--forget")

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(out, "Error:", describe(cmdErr))
		}
	}
}

func isSessionCommand(cmd string) bool {
	switch cmd {
	case "l", "list", "add", "show", "remove", "rm", "sync", "passwd", "logout":
		return true
	}
	return false
}
