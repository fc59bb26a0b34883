// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// stackwarden is a Telegram bot for managing an OpenStack tenant:
// server and network inventory, floating-IP lifecycle, and per-port
// fixed-IP changes, all behind a user allowlist.
//
// Configuration comes from a YAML file (--config or the
// STACKWARDEN_CONFIG environment variable). Secrets come from the
// environment: OS_PASSWORD for the cloud credential (prompted on a
// terminal when unset) and TELEGRAM_BOT_TOKEN for the bot token.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/stackwarden/stackwarden/bot"
	"github.com/stackwarden/stackwarden/lib/config"
	"github.com/stackwarden/stackwarden/lib/secret"
	"github.com/stackwarden/stackwarden/openstack"
	"github.com/stackwarden/stackwarden/telegram"
	"github.com/stackwarden/stackwarden/topology"
	"github.com/stackwarden/stackwarden/workflow"
)

const versionString = "stackwarden 0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var checkOnly bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("stackwarden", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to stackwarden.yaml (default: $STACKWARDEN_CONFIG)")
	flagSet.BoolVar(&checkOnly, "check", false, "validate configuration and credentials, then exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println(versionString)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	password, err := readPassword()
	if err != nil {
		return err
	}
	defer password.Close()

	botToken, err := readBotToken()
	if err != nil {
		return err
	}
	defer botToken.Close()

	allowlist, err := bot.LoadAllowlist(cfg.Telegram.AllowlistPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cloud, err := openstack.NewClient(openstack.ClientConfig{
		AuthURL:         cfg.OpenStack.AuthURL,
		Username:        cfg.OpenStack.Username,
		Password:        password,
		ProjectID:       cfg.OpenStack.ProjectID,
		UserDomainName:  cfg.OpenStack.UserDomainName,
		ProjectDomainID: cfg.OpenStack.ProjectDomainID,
		HTTPClient:      &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		Logger:          logger.With("component", "openstack"),
	})
	if err != nil {
		return err
	}

	logger.Info("testing cloud connection", "auth_url", cfg.OpenStack.AuthURL,
		"project", cfg.OpenStack.ProjectName)
	if err := cloud.Authenticate(ctx); err != nil {
		return fmt.Errorf("cloud authentication failed: %w", err)
	}
	logger.Info("cloud connection successful")

	resolver := topology.NewResolver(topology.ResolverConfig{
		Directory:        cloud,
		PreferredNetwork: cfg.OpenStack.PreferredPublicNetwork,
		Logger:           logger.With("component", "topology"),
	})

	messenger, err := telegram.NewClient(telegram.ClientConfig{
		Token: botToken,
		// The poll window plus headroom for the response itself.
		HTTPClient: &http.Client{Timeout: cfg.PollTimeoutDuration() + cfg.RequestTimeoutDuration()},
		Logger:     logger.With("component", "telegram"),
	})
	if err != nil {
		return err
	}

	if checkOnly {
		if _, err := messenger.GetMe(ctx); err != nil {
			return fmt.Errorf("telegram token check failed: %w", err)
		}
		logger.Info("configuration and credentials check passed")
		return nil
	}

	me, err := messenger.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram token check failed: %w", err)
	}
	logger.Info("telegram connection successful", "bot_username", me.Username)

	workflows := workflow.NewService(workflow.ServiceConfig{
		API:      cloud,
		Topology: resolver,
		Logger:   logger.With("component", "workflow"),
	})

	instance, err := bot.NewBot(bot.BotConfig{
		Messenger:   messenger,
		Workflows:   workflows,
		Allowlist:   allowlist,
		PollTimeout: cfg.PollTimeoutDuration(),
		Logger:      logger.With("component", "bot"),
	})
	if err != nil {
		return err
	}

	logger.Info("starting update loop")
	if err := instance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// readPassword takes the cloud credential from OS_PASSWORD, falling
// back to an interactive prompt when stdin is a terminal.
func readPassword() (*secret.Buffer, error) {
	if value := os.Getenv("OS_PASSWORD"); value != "" {
		return secret.NewFromString(value)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("OS_PASSWORD is not set and no terminal is available to prompt")
	}
	fmt.Fprint(os.Stderr, "OpenStack password: ")
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	buffer, err := secret.NewFromBytes(passwordBytes)
	secret.Zero(passwordBytes)
	return buffer, err
}

// readBotToken takes the bot token from TELEGRAM_BOT_TOKEN. There is
// no prompt fallback: the token is a machine credential.
func readBotToken() (*secret.Buffer, error) {
	value := os.Getenv("TELEGRAM_BOT_TOKEN")
	if value == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	return secret.NewFromString(value)
}
