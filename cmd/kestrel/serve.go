package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomharwin/kestrel/internal/api"
	"github.com/tomharwin/kestrel/internal/auth"
	"github.com/tomharwin/kestrel/internal/config"
	"github.com/tomharwin/kestrel/internal/db"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config.yaml (optional)")
	addr := fs.String("addr", "", "Listen address, overrides the config file")
	dataDir := fs.String("data-dir", "", "Data directory, overrides the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	fmt.Printf("Kestrel v%s\n", version)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fmt.Printf("Opening database: %s\n", cfg.DatabasePath())
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Signing keys persist in the data directory so tokens survive restarts.
	keys, err := auth.EnsureKeyPair(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load JWT keys: %w", err)
	}

	tokenConfig := &auth.TokenConfig{
		Issuer:       cfg.Auth.Issuer,
		ExpiryHours:  cfg.Auth.TokenExpiryHours,
		RefreshHours: cfg.Auth.RefreshExpiryHours,
		SigningKey:   keys.PrivateKey,
		VerifyingKey: keys.PublicKey,
	}

	if err := bootstrapAdmin(database, cfg); err != nil {
		return err
	}

	server, err := api.NewServer(database, api.Config{
		Addr:            cfg.ListenAddr,
		TokenConfig:     tokenConfig,
		DisableRealtime: !cfg.Realtime.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Printf("Listening on %s\n", cfg.ListenAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		fmt.Printf("\nReceived signal %s, shutting down...\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// bootstrapAdmin creates the configured admin account if it does not exist.
func bootstrapAdmin(database *db.DB, cfg *config.Config) error {
	name := cfg.Bootstrap.AdminName
	if name == "" {
		return nil
	}

	existing, err := database.GetUserByName(name)
	if err != nil {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	if cfg.Bootstrap.AdminPassword == "" {
		return fmt.Errorf("bootstrap admin %q needs admin_password set", name)
	}
	hash, err := auth.HashPassword(cfg.Bootstrap.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}
	if _, err := database.CreateUser(name, hash, db.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	fmt.Printf("Created admin account %q\n", name)
	return nil
}
