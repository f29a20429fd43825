package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/tomharwin/kestrel/internal/chatclient"
)

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "Chat server URL")
	name := fs.String("name", "", "Account name (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	account := *name
	if account == "" {
		fmt.Print("Name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		account = strings.TrimSpace(line)
	}
	if account == "" {
		return fmt.Errorf("name must not be empty")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	rest := chatclient.NewRESTClient(*server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := rest.Login(ctx, account, string(password))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	dataDir, err := chatclient.DefaultDataDir()
	if err != nil {
		return err
	}
	creds := &chatclient.Credentials{
		ServerURL:    *server,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}
	if err := creds.Save(dataDir); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", resp.User.Name, resp.User.Role)
	return nil
}

func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dataDir, err := chatclient.DefaultDataDir()
	if err != nil {
		return err
	}
	if err := chatclient.ClearCredentials(dataDir); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dataDir, err := chatclient.DefaultDataDir()
	if err != nil {
		return err
	}
	creds, err := chatclient.LoadCredentials(dataDir)
	if err != nil {
		if err == chatclient.ErrNoCredential {
			fmt.Println("Not logged in")
			return nil
		}
		return err
	}

	fmt.Printf("Logged in as %s (%s) at %s\n", creds.User.Name, creds.User.Role, creds.ServerURL)

	rest := chatclient.NewRESTClient(creds.ServerURL, func() string { return creds.Token })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := rest.UnreadCount(ctx)
	if err != nil {
		fmt.Printf("Unread count unavailable: %v\n", err)
		return nil
	}
	fmt.Printf("Unread messages: %d\n", count)
	return nil
}
