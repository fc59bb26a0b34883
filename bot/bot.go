// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot is the Telegram-facing surface: it long-polls for
// updates, enforces the allowlist before anything touches the cloud,
// and translates commands and button presses into workflow calls.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stackwarden/stackwarden/lib/clock"
	"github.com/stackwarden/stackwarden/telegram"
	"github.com/stackwarden/stackwarden/workflow"
)

// retryDelay paces the poll loop after a transport failure.
const retryDelay = 3 * time.Second

// Messenger is the slice of the Telegram client the bot drives.
// *telegram.Client satisfies it; tests substitute fakes.
type Messenger interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, request telegram.SendMessageRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, request telegram.EditMessageTextRequest) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

var _ Messenger = (*telegram.Client)(nil)

// BotConfig holds configuration for creating a Bot.
type BotConfig struct {
	Messenger Messenger
	Workflows *workflow.Service
	Allowlist *Allowlist
	// PollTimeout is the long-poll window passed to GetUpdates.
	PollTimeout time.Duration
	// Clock paces retry sleeps. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Bot routes Telegram updates to workflows.
type Bot struct {
	messenger   Messenger
	workflows   *workflow.Service
	allowlist   *Allowlist
	pollTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// NewBot creates a Bot.
func NewBot(config BotConfig) (*Bot, error) {
	if config.Messenger == nil {
		return nil, fmt.Errorf("bot: Messenger is required")
	}
	if config.Workflows == nil {
		return nil, fmt.Errorf("bot: Workflows is required")
	}
	if config.Allowlist == nil {
		return nil, fmt.Errorf("bot: Allowlist is required")
	}
	pollTimeout := config.PollTimeout
	if pollTimeout == 0 {
		pollTimeout = 30 * time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		messenger:   config.Messenger,
		workflows:   config.Workflows,
		allowlist:   config.Allowlist,
		pollTimeout: pollTimeout,
		clock:       clk,
		logger:      logger,
	}, nil
}

// Run polls for updates until the context is cancelled. Poll failures
// are logged and retried; they never stop the loop.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.messenger.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("polling for updates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.clock.After(retryDelay):
			}
			continue
		}
		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		b.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *telegram.Message) {
	chatID := message.Chat.ID
	if err := b.allowlist.Check(message.From); err != nil {
		b.logger.Warn("rejected command from unauthorized user",
			"user_id", userID(message.From), "command", message.Text)
		b.send(ctx, chatID, errorView(err))
		return
	}

	fields := strings.Fields(message.Text)
	command, _, _ := strings.Cut(fields[0], "@")
	switch command {
	case "/start":
		b.send(ctx, chatID, mainMenuView())
	case "/help":
		b.send(ctx, chatID, helpView())
	case "/status":
		b.send(ctx, chatID, b.statusView(ctx))
	case "/newnet":
		var name, cidr string
		if len(fields) > 1 {
			name = fields[1]
		}
		if len(fields) > 2 {
			cidr = fields[2]
		}
		b.send(ctx, chatID, b.createNetworkView(ctx, name, cidr))
	case "/cancel":
		b.workflows.Cancel(chatID)
		b.send(ctx, chatID, view{text: "❎ Workflow cancelled.", markup: keyboard(backToMain())})
	default:
		b.send(ctx, chatID, view{
			text:   fmt.Sprintf("🤷 Unknown command `%s`. Try `/start`.", command),
			markup: keyboard(backToMain()),
		})
	}
}

func (b *Bot) statusView(ctx context.Context) view {
	if err := b.workflows.AuthenticateNow(ctx); err != nil {
		b.logger.Error("status check failed", "error", err)
		return view{text: "✅ *Bot Status: Online*\n❌ *OpenStack API: Connection Failed*"}
	}
	return view{text: "✅ *Bot Status: Online*\n✅ *OpenStack API: Connected*"}
}

func (b *Bot) createNetworkView(ctx context.Context, name, cidr string) view {
	result, err := b.workflows.CreatePrivateNetwork(ctx, name, cidr)
	if err != nil {
		b.logger.Error("creating private network failed", "error", err)
		if result != nil && result.Network != nil {
			return view{
				text: fmt.Sprintf("⚠️ Network *%s* was created, but its subnet failed. "+
					"Add one manually or delete the network and retry.", result.Network.Name),
				markup: keyboard(backToMain()),
			}
		}
		return errorView(err)
	}
	return view{
		text: fmt.Sprintf("✅ Created network *%s* with subnet `%s`.",
			result.Network.Name, result.Subnet.CIDR),
		markup: keyboard(backToMain()),
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *telegram.CallbackQuery) {
	if err := b.messenger.AnswerCallbackQuery(ctx, query.ID, ""); err != nil {
		b.logger.Warn("answering callback failed", "error", err)
	}
	if query.Message == nil {
		b.logger.Warn("callback without source message", "data", query.Data)
		return
	}
	chatID := query.Message.Chat.ID

	if err := b.allowlist.Check(&query.From); err != nil {
		b.logger.Warn("rejected callback from unauthorized user",
			"user_id", query.From.ID, "data", query.Data)
		b.edit(ctx, chatID, query.Message.MessageID, errorView(err))
		return
	}

	b.edit(ctx, chatID, query.Message.MessageID, b.dispatch(ctx, chatID, query.Data))
}

// dispatch maps a callback payload to the next screen. Payloads are
// "verb" or "verb:index", where the index points into the listing the
// conversation was last shown.
func (b *Bot) dispatch(ctx context.Context, chatID int64, data string) view {
	verb, arg, _ := strings.Cut(data, ":")
	index, argErr := strconv.Atoi(arg)
	if arg == "" {
		argErr = nil
	}
	if argErr != nil {
		b.logger.Warn("malformed callback payload", "data", data)
		return errorView(argErr)
	}

	result, err := b.dispatchVerb(ctx, chatID, verb, index)
	if err != nil {
		b.logger.Error("callback handling failed", "verb", verb, "error", err)
		return errorView(err)
	}
	return result
}

func (b *Bot) dispatchVerb(ctx context.Context, chatID int64, verb string, index int) (view, error) {
	switch verb {
	case "main":
		return mainMenuView(), nil
	case "help":
		return helpView(), nil
	case "cancel":
		b.workflows.Cancel(chatID)
		return mainMenuView(), nil

	case "servers":
		servers, err := b.workflows.ListServers(ctx, chatID)
		if err != nil {
			return view{}, err
		}
		return serversView(servers), nil
	case "srv":
		server, err := b.workflows.ServerAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		detail, interfaces, err := b.workflows.ServerDetail(ctx, server.ID)
		if err != nil {
			return view{}, err
		}
		return serverDetailView(index, detail, interfaces), nil

	case "networks":
		networks, err := b.workflows.ListNetworks(ctx)
		if err != nil {
			return view{}, err
		}
		return networksView(networks), nil

	case "fips":
		floatingIPs, err := b.workflows.ListFloatingIPs(ctx, chatID)
		if err != nil {
			return view{}, err
		}
		return floatingIPsView(floatingIPs), nil
	case "fip.alloc":
		floatingIP, err := b.workflows.AllocateFloatingIP(ctx)
		if err != nil {
			return view{}, err
		}
		return view{
			text:   fmt.Sprintf("✅ Allocated floating IP `%s`.", floatingIP.FloatingIPAddress),
			markup: keyboard([]telegram.InlineKeyboardButton{button("🔗 Floating IPs", "fips")}, backToMain()),
		}, nil
	case "fip.detach":
		floatingIP, err := b.workflows.FloatingIPAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		if _, err := b.workflows.DisassociateFloatingIP(ctx, floatingIP.ID); err != nil {
			return view{}, err
		}
		return view{
			text:   fmt.Sprintf("✂️ Detached floating IP `%s`.", floatingIP.FloatingIPAddress),
			markup: keyboard([]telegram.InlineKeyboardButton{button("🔗 Floating IPs", "fips")}, backToMain()),
		}, nil
	case "fip.del":
		floatingIP, err := b.workflows.FloatingIPAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		return confirmReleaseView(index, floatingIP), nil
	case "fip.del.yes":
		floatingIP, err := b.workflows.FloatingIPAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		if err := b.workflows.DeleteFloatingIP(ctx, floatingIP.ID); err != nil {
			return view{}, err
		}
		return view{
			text:   fmt.Sprintf("🗑️ Released floating IP `%s`.", floatingIP.FloatingIPAddress),
			markup: keyboard(backToMain()),
		}, nil

	case "fip.assoc":
		server, err := b.workflows.ServerAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		candidates, err := b.workflows.BeginAssociateFloatingIP(ctx, chatID, server.ID)
		if err != nil {
			return view{}, err
		}
		return associateCandidatesView(candidates), nil
	case "fip.pick":
		result, err := b.workflows.ConfirmAssociateFloatingIP(ctx, chatID, index)
		if err != nil {
			return view{}, err
		}
		return associateResultView(result), nil

	case "ip.add":
		server, err := b.workflows.ServerAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		interfaces, err := b.workflows.BeginAddFixedIP(ctx, chatID, server.ID)
		if err != nil {
			return view{}, err
		}
		return interfaceChoicesView(interfaces), nil
	case "ip.iface":
		choices, err := b.workflows.SelectInterface(ctx, chatID, index)
		if err != nil {
			return view{}, err
		}
		return subnetChoicesView(choices), nil
	case "ip.subnet":
		choice, err := b.workflows.SelectSubnet(chatID, index)
		if err != nil {
			return view{}, err
		}
		return confirmAddView(choice), nil
	case "ip.add.yes":
		port, err := b.workflows.ConfirmAddFixedIP(ctx, chatID)
		if err != nil {
			return view{}, err
		}
		return view{
			text:   fmt.Sprintf("✅ Fixed IP added. Port `%s` now has %d addresses.", shortID(port.ID), len(port.FixedIPs)),
			markup: keyboard(backToMain()),
		}, nil

	case "ip.del":
		server, err := b.workflows.ServerAt(chatID, index)
		if err != nil {
			return view{}, err
		}
		removals, err := b.workflows.BeginRemoveFixedIP(ctx, chatID, server.ID)
		if err != nil {
			return view{}, err
		}
		return removalChoicesView(removals), nil
	case "ip.pick":
		removal, err := b.workflows.SelectRemoveAddress(chatID, index)
		if err != nil {
			return view{}, err
		}
		return confirmRemoveView(removal), nil
	case "ip.del.yes":
		port, err := b.workflows.ConfirmRemoveFixedIP(ctx, chatID)
		if err != nil {
			return view{}, err
		}
		return view{
			text:   fmt.Sprintf("✅ Fixed IP removed. Port `%s` now has %d addresses.", shortID(port.ID), len(port.FixedIPs)),
			markup: keyboard(backToMain()),
		}, nil
	}

	b.logger.Warn("unknown callback verb", "verb", verb)
	return view{text: "🤷 That button is no longer valid.", markup: keyboard(backToMain())}, nil
}

func (b *Bot) send(ctx context.Context, chatID int64, v view) {
	_, err := b.messenger.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        v.text,
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: v.markup,
	})
	if err != nil {
		b.logger.Error("sending message failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, chatID, messageID int64, v view) {
	_, err := b.messenger.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        v.text,
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: v.markup,
	})
	if err != nil {
		b.logger.Error("editing message failed", "chat_id", chatID, "error", err)
	}
}

func userID(user *telegram.User) int64 {
	if user == nil {
		return 0
	}
	return user.ID
}
