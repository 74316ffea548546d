package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for REPL output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Guest(ctx context.Context) error
	Status(ctx context.Context) error
	TryOn(ctx context.Context, args []string) error
	Outfit(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit".
// Command errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("stylist %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn(ctx) {
				printlnFn("Available commands: status, tryon <person> <garment> <out>, outfit <json-file>, history, logout, exit")
			} else {
				printlnFn("Available commands: register, login, guest, history, exit")
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "guest":
			cmdErr = a.Guest(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "tryon":
			cmdErr = a.TryOn(ctx, args)
		case "outfit":
			cmdErr = a.Outfit(ctx, args)
		case "history":
			cmdErr = a.History(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", describeError(cmdErr))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
