package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/tomharwin/kestrel/internal/auth"
	"github.com/tomharwin/kestrel/internal/config"
	"github.com/tomharwin/kestrel/internal/db"
)

func printAdminUsage() {
	fmt.Fprintf(os.Stderr, "Kestrel Admin - Local account administration\n\n")
	fmt.Fprintf(os.Stderr, "Usage: kestrel admin <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  create-user    Create an account (user or admin)\n")
	fmt.Fprintf(os.Stderr, "  list-users     List all accounts\n")
	fmt.Fprintf(os.Stderr, "  help           Show this help message\n")
	fmt.Fprintf(os.Stderr, "\nThese commands operate on the server database directly and must run\n")
	fmt.Fprintf(os.Stderr, "on the server host. Run 'kestrel admin <command> --help' for options.\n")
}

func runAdmin(args []string) error {
	if len(args) == 0 {
		printAdminUsage()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "help", "-h", "--help":
		printAdminUsage()
		return nil
	default:
		return fmt.Errorf("unknown admin command: %s\nRun 'kestrel admin help' for usage", args[0])
	}
}

// openAdminDB resolves the data directory the same way serve does and opens
// the database behind the server.
func openAdminDB(configPath, dataDir string) (*db.DB, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("admin create-user", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config.yaml (optional)")
	dataDir := fs.String("data-dir", "", "Data directory, overrides the config file")
	role := fs.String("role", db.RoleUser, "Account role: user or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kestrel admin create-user [options] <name>")
	}
	name := fs.Arg(0)

	if *role != db.RoleUser && *role != db.RoleAdmin {
		return fmt.Errorf("invalid role %q: must be %q or %q", *role, db.RoleUser, db.RoleAdmin)
	}

	database, err := openAdminDB(*configPath, *dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	existing, err := database.GetUserByName(name)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("account %q already exists", name)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := database.CreateUser(name, hash, *role)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Printf("Created %s account %q (%s)\n", user.Role, user.Name, user.ID)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("admin list-users", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config.yaml (optional)")
	dataDir := fs.String("data-dir", "", "Data directory, overrides the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openAdminDB(*configPath, *dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	users, err := database.ListUsers()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No accounts")
		return nil
	}

	for _, user := range users {
		lastLogin := "never"
		if user.LastLoginAt.Valid {
			lastLogin = user.LastLoginAt.Time.Format(time.RFC3339)
		}
		fmt.Printf("%-24s  %-5s  created %s  last login %s\n",
			user.Name, user.Role, user.CreatedAt.Format(time.RFC3339), lastLogin)
	}
	return nil
}
