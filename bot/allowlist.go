// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/stackwarden/stackwarden/telegram"
)

// UnauthorizedError reports a sender the allowlist does not name. It
// is raised before any control-plane call is made on their behalf.
type UnauthorizedError struct {
	UserID   int64
	Username string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("bot: user %d (%q) is not allowed", e.UserID, e.Username)
}

// Allowlist names the Telegram accounts permitted to drive the bot.
// Matching is by numeric user ID or by username (case-insensitive);
// either is sufficient.
type Allowlist struct {
	userIDs   map[int64]struct{}
	usernames map[string]struct{}
}

// allowlistFile is the on-disk shape. The file may carry comments and
// trailing commas.
type allowlistFile struct {
	UserIDs   []int64  `json:"user_ids"`
	Usernames []string `json:"usernames"`
}

// LoadAllowlist reads an allowlist file. An allowlist that names
// nobody is a configuration error, not an open door.
func LoadAllowlist(path string) (*Allowlist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bot: reading allowlist: %w", err)
	}
	var parsed allowlistFile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &parsed); err != nil {
		return nil, fmt.Errorf("bot: parsing allowlist %s: %w", path, err)
	}
	if len(parsed.UserIDs) == 0 && len(parsed.Usernames) == 0 {
		return nil, fmt.Errorf("bot: allowlist %s names no users", path)
	}

	list := &Allowlist{
		userIDs:   make(map[int64]struct{}, len(parsed.UserIDs)),
		usernames: make(map[string]struct{}, len(parsed.Usernames)),
	}
	for _, id := range parsed.UserIDs {
		list.userIDs[id] = struct{}{}
	}
	for _, name := range parsed.Usernames {
		list.usernames[strings.ToLower(name)] = struct{}{}
	}
	return list, nil
}

// Check returns nil when the user may drive the bot.
func (a *Allowlist) Check(user *telegram.User) error {
	if user != nil {
		if _, ok := a.userIDs[user.ID]; ok {
			return nil
		}
		if _, ok := a.usernames[strings.ToLower(user.Username)]; ok && user.Username != "" {
			return nil
		}
	}
	var userID int64
	var username string
	if user != nil {
		userID, username = user.ID, user.Username
	}
	return &UnauthorizedError{UserID: userID, Username: username}
}
