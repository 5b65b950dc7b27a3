// Command membership-admin runs one-off membership operations against the
// configured store: creating and deleting users, checking passwords, listing
// users and creating indexes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gogotex/membership/internal/bootstrap"
	"github.com/gogotex/membership/internal/config"
	"github.com/gogotex/membership/internal/users"
	"github.com/gogotex/membership/pkg/logger"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetFormat("console")

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env bundles the services a command needs.
type env struct {
	svc     users.Service
	dir     *users.Directory
	backend *bootstrap.Backend
	app     string
}

func open(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := bootstrap.OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	policy := bootstrap.NewPolicy(cfg.Membership)
	lifecycle := users.NewLifecycleService(backend.Store, policy, logger.Component("admin"))
	return &env{
		svc:     users.NewValidator(lifecycle, policy),
		dir:     users.NewDirectory(backend.Store, policy),
		backend: backend,
		app:     policy.ApplicationName(),
	}, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	switch command {
	case "version":
		fmt.Fprintf(out, "Membership Admin CLI\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	case "create", "delete", "check", "passwd", "get", "list", "indexes":
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", command)
		return errUsage
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(out)
	app := fs.String("app", "", "application name (defaults to MEMBERSHIP_APPLICATION_NAME)")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	newPassword := fs.String("new-password", "", "new password (passwd)")
	email := fs.String("email", "", "email address")
	match := fs.String("match", "", "username substring (list)")
	page := fs.Int("page", 0, "page index (list)")
	pageSize := fs.Int("page-size", users.DefaultPageSize, "page size (list)")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.backend.Close(context.Background())
	if *app == "" {
		*app = e.app
	}

	switch command {
	case "create":
		u, status := e.svc.CreateUser(ctx, *app, *username, *password, *email)
		if status != users.StatusSuccess {
			return fmt.Errorf("create user: %s", status)
		}
		return printJSON(out, u)

	case "delete":
		if _, err := e.svc.DeleteUser(ctx, *app, *username, true); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", *username)
		return nil

	case "check":
		ok, err := e.svc.CheckPassword(ctx, *app, *username, *password, false)
		if err != nil {
			return err
		}
		if !ok {
			return users.ErrInvalidCredentials
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "passwd":
		ok, err := e.svc.ChangePassword(ctx, *app, *username, *password, *newPassword)
		if err != nil {
			return err
		}
		if !ok {
			return users.ErrInvalidCredentials
		}
		fmt.Fprintln(out, "password changed")
		return nil

	case "get":
		u, err := e.dir.GetUser(ctx, *app, *username)
		if err != nil {
			return err
		}
		return printJSON(out, u)

	case "list":
		p, err := e.dir.FindUsersByName(ctx, *app, *match, *page, *pageSize)
		if err != nil {
			return err
		}
		return printJSON(out, p)

	case "indexes":
		// OpenBackend already ensured them
		fmt.Fprintf(out, "indexes ensured on %s store\n", e.backend.Kind)
		return nil
	}
	return errUsage
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Membership Admin CLI

Usage:
  membership-admin <command> [flags]

Commands:
  create      Create a user (--username --password [--email])
  delete      Delete a user and its claims (--username)
  check       Verify a password (--username --password)
  passwd      Change a password (--username --password --new-password)
  get         Show a user (--username)
  list        List users (--match --page --page-size)
  indexes     Create the MongoDB lookup indexes
  version     Print version information
  help        Show this help message

All commands accept --app to act on another application and read the same
environment (MONGODB_URI, MEMBERSHIP_*) as the server.`)
}
