package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/charasync/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// errUsage makes the REPL print the command's usage line.
var errUsage = errors.New("usage")

type handler func(ctx context.Context, args []string) error

type command struct {
	usage string
	// public commands run without a logged in user.
	public bool
	run    handler
}

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	commandSet() map[string]command
}

// runREPL starts a simple read–eval–print loop for the charasync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command and passes the remaining tokens to its handler. Commands that need
// a session are refused until login. The loop exits on scanner EOF or when
// the user types "exit" or "quit".
//
// Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	commands := a.commandSet()
	for {
		printlnFn(fmt.Sprintf("cs %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "help":
			printlnFn(helpText(commands, a.isLoggedIn()))
			continue
		}

		cmd, ok := commands[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if !cmd.public && !a.isLoggedIn() {
			printlnFn("Please login first")
			continue
		}
		if err := cmd.run(ctx, args); err != nil {
			if errors.Is(err, errUsage) {
				printlnFn("Usage:", cmd.usage)
				continue
			}
			printlnFn("Error:", describeError(err))
		}
	}
}

func helpText(commands map[string]command, loggedIn bool) string {
	lines := []string{"Available commands:"}
	names := make([]string, 0, len(commands))
	for name, cmd := range commands {
		// logged out shows the public commands, logged in the others
		if cmd.public != loggedIn {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		lines = append(lines, "  "+commands[name].usage)
	}
	lines = append(lines, "  help", "  exit | quit")
	return strings.Join(lines, "\n")
}

// describeError prefixes err with a short hint for the common failures.
func describeError(err error) string {
	switch {
	case errors.Is(err, common.ErrRateLimited):
		return "slow down: " + err.Error()
	case errors.Is(err, common.ErrPermissionDenied):
		return "not allowed: " + err.Error()
	case errors.Is(err, common.ErrNotFound):
		return "not found: " + err.Error()
	case errors.Is(err, common.ErrTransportFailure):
		return "server unreachable: " + err.Error()
	}
	return err.Error()
}
