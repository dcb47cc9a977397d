package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/dispatch"
)

// runShell reads commands until EOF, quit or ctx is cancelled.
func runShell(ctx context.Context, d *dispatch.Dispatcher, name string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          name + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// keep log lines from tearing the prompt
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: rl.Stderr(), TimeFormat: "15:04:05"})

	out := rl.Stdout()
	printShellHelp(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}

		if quit := shellLine(ctx, d, name, line, out); quit {
			return nil
		}
	}
}

// shellLine runs one prompt line and reports whether the shell should exit.
func shellLine(ctx context.Context, d *dispatch.Dispatcher, name, line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "help", "?":
		printShellHelp(out)
	case "state", "s":
		if err := printState(out, d, name); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	case "quit", "exit", "q":
		return true
	default:
		// labels stay case-sensitive so "ON" is reported as unrecognized
		if err := runCommand(ctx, d, name, parts, out); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
	return false
}

func printShellHelp(out io.Writer) {
	fmt.Fprint(out, `Commands:
  on | off           switch the bulb
  exact R G B        set the color (or exact #RRGGBB)
  update             query the power state
  state              print stored metrics
  quit               leave the shell
`)
}
