// Command certctl is the terminal client for the vehicle export certificate
// portal. It keeps one session per data directory across restarts.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"certportal/internal/navigation"
	"certportal/internal/platform/config"
	"certportal/internal/platform/logger"
	"certportal/internal/shell"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("certctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flags := config.RegisterClientFlags(flagSet)
	var email string
	flagSet.StringVar(&email, "email", "", "account email for the login command")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}

	command := "shell"
	if flagSet.NArg() > 0 {
		command = flagSet.Arg(0)
	}

	cfg, err := config.LoadClient(flags.ConfigPath)
	if err != nil {
		return err
	}
	flags.Apply(&cfg)
	if command == "login" {
		cfg.Open = navigation.LoginRoute
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	log, closer, err := logger.OpenFile(cfg.LogPath(), logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logMetrics(ctx)

	switch command {
	case "shell":
		return runShell(ctx, a)
	case "whoami":
		return runWhoami(ctx, a, stdout)
	case "login":
		return runLogin(ctx, a, email, stdin, stdout)
	case "logout":
		return runLogout(ctx, a, stdout)
	default:
		printHelp(stderr, flagSet)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runShell(ctx context.Context, a *app) error {
	model := shell.NewModel(ctx, a.shellDeps())
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runWhoami(ctx context.Context, a *app, stdout io.Writer) error {
	state, err := a.session.Run(ctx)
	a.printToasts(stdout)
	if err != nil {
		return err
	}
	if !state.HasSession() {
		fmt.Fprintln(stdout, "Not signed in.")
		return nil
	}
	u := state.User
	fmt.Fprintf(stdout, "%s <%s> %s\n", u.Name, u.Email, u.Role)
	return nil
}

func runLogin(ctx context.Context, a *app, email string, stdin io.Reader, stdout io.Writer) error {
	if a.login.Probe(ctx) {
		a.printToasts(stdout)
		fmt.Fprintf(stdout, "Already signed in as %s.\n", a.store.Snapshot().User.Email)
		return nil
	}

	reader := bufio.NewReader(stdin)
	var err error
	if email == "" {
		if email, err = promptLine(reader, stdout, "Email: "); err != nil {
			return err
		}
	}
	password, err := promptPassword(stdin, reader, stdout)
	if err != nil {
		return err
	}

	err = a.login.Submit(ctx, email, password)
	a.printToasts(stdout)
	return err
}

func runLogout(ctx context.Context, a *app, stdout io.Writer) error {
	a.logouter.Logout(ctx)
	a.printToasts(stdout)
	return nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `certctl: terminal client for the vehicle export certificate portal.

Usage:
  certctl [flags] [command]

Commands:
  shell    open the interactive portal (default)
  login    sign in with email and password
  logout   end the session on the server and on this machine
  whoami   confirm the stored session with the server and print it

Examples:
  # Resume where you left off
  certctl

  # Finish a Google sign-in handed back by the browser
  certctl --open "/?success=true"

Flags:
`)
	flagSet.PrintDefaults()
}
