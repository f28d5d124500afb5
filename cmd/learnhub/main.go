// Command learnhub manages a learnhub session from the terminal.
//
//	learnhub login -email ada@learnhub.test -password secret
//	learnhub whoami
//	learnhub get /users/me
//	learnhub logout
//
// Configuration comes from the environment (LEARNHUB_API_URL, LEARNHUB_STORE,
// ...) or the YAML file named by LEARNHUB_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/learnhub/internal/app"
	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
	"github.com/aussiebroadwan/learnhub/pkg/session"
)

const usage = `usage: learnhub <command> [flags]

commands:
  login     -email E -password P     start a session
  register  -email E -password P [-name N]
  whoami                             print the current identity
  refresh                            exchange the refresh token now
  logout                             end the session
  get PATH                           GET an API path with the session attached
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "learnhub:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	application.Start(ctx)
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "login", "register":
		return authenticate(ctx, application.Session, cmd, rest, stdout)
	case "whoami":
		user := application.Session.User()
		if user == nil {
			return errors.New("not logged in")
		}
		return printJSON(stdout, user)
	case "refresh":
		if _, err := application.Session.Refresh(ctx, ""); err != nil {
			if session.IsNoRefreshToken(err) {
				return errors.New("not logged in")
			}
			return fmt.Errorf("refresh failed: %s", apiclient.Message(err))
		}
		return printJSON(stdout, application.Session.User())
	case "logout":
		application.Session.Logout(ctx)
		fmt.Fprintln(stdout, "logged out")
		return nil
	case "get":
		if len(rest) != 1 {
			return errors.New("get requires exactly one path")
		}
		var data json.RawMessage
		if err := application.Client.Get(ctx, rest[0], &data); err != nil {
			return fmt.Errorf("GET %s: %s", rest[0], apiclient.Message(err))
		}
		return printJSON(stdout, data)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func authenticate(ctx context.Context, ctrl *session.Controller, cmd string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	email := fs.String("email", os.Getenv("LEARNHUB_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("LEARNHUB_PASSWORD"), "account password")
	name := fs.String("name", "", "full name (register only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}

	var (
		user *session.Identity
		err  error
	)
	if cmd == "register" {
		user, err = ctrl.Register(ctx, *email, *password, *name)
	} else {
		user, err = ctrl.Login(ctx, *email, *password)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %s", cmd, apiclient.Message(err))
	}
	return printJSON(stdout, user)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
