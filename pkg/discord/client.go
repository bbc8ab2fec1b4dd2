// Package discord is a minimal Discord bot client covering the REST and
// gateway surface the membership directory needs: role management, member
// management, and direct messages.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const apiBaseURL = "https://discord.com/api/v10"

// Client is an authenticated Discord REST client.
type Client struct {
	token      string
	httpClient *http.Client
}

// ClientConfig holds configuration for the Discord client.
type ClientConfig struct {
	Token   string
	Timeout time.Duration
}

// Role is a guild role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a guild member with their held role IDs.
type Member struct {
	User  User     `json:"user"`
	Roles []string `json:"roles"`
}

// User is a Discord account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Channel is a text channel; for this client always a DM channel.
type Channel struct {
	ID string `json:"id"`
}

// Message is an inbound or outbound channel message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Content   string `json:"content"`
	Author    User   `json:"author"`
}

// APIError is a non-2xx Discord API response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API error %d: %s", e.Status, e.Body)
}

// IsPermission reports whether the API refused the call for lack of rights.
func (e *APIError) IsPermission() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NewClient creates a Discord REST client for a bot token.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GuildRoles lists all roles in a guild.
func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	resp, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/roles", guildID), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var roles []Role
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return roles, nil
}

// CreateRole creates a guild role with the given name.
func (c *Client) CreateRole(ctx context.Context, guildID, name string) (*Role, error) {
	payload := map[string]any{"name": name}
	resp, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/roles", guildID), payload,
		"auto-created for subscription management")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var role Role
	if err := json.NewDecoder(resp.Body).Decode(&role); err != nil {
		return nil, fmt.Errorf("decode role: %w", err)
	}
	return &role, nil
}

// GuildMember fetches one member, including their held role IDs.
func (c *Client) GuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	resp, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var member Member
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, fmt.Errorf("decode member: %w", err)
	}
	return &member, nil
}

// AddMemberRole grants a role to a member.
func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	resp, err := c.request(ctx, http.MethodPut,
		fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID), nil, "subscription activated")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// RemoveMemberRole revokes a role from a member.
func (c *Client) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	resp, err := c.request(ctx, http.MethodDelete,
		fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID), nil, "subscription ended")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// KickMember removes a member from the guild.
func (c *Client) KickMember(ctx context.Context, guildID, userID, reason string) error {
	resp, err := c.request(ctx, http.MethodDelete,
		fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), nil, reason)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// CreateDMChannel opens (or reuses) the DM channel with a user.
func (c *Client) CreateDMChannel(ctx context.Context, userID string) (*Channel, error) {
	payload := map[string]any{"recipient_id": userID}
	resp, err := c.request(ctx, http.MethodPost, "/users/@me/channels", payload, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var channel Channel
	if err := json.NewDecoder(resp.Body).Decode(&channel); err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}
	return &channel, nil
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) error {
	payload := map[string]any{"content": content}
	resp, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), payload, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// GatewayURL asks the API for the websocket gateway endpoint.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, "/gateway/bot", nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}

	u, err := url.Parse(result.URL)
	if err != nil {
		return "", fmt.Errorf("parse gateway URL: %w", err)
	}
	u.RawQuery = "v=10&encoding=json"
	return u.String(), nil
}

// request performs an API request. auditReason, when set, is recorded in the
// guild audit log for mutating calls.
func (c *Client) request(ctx context.Context, method, path string, payload any, auditReason string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "rolesync (https://github.com/tradesuite/rolesync, 1.0)")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auditReason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(auditReason))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode, Body: string(respBody)}
		if apiErr.IsPermission() {
			log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("Discord refused call for lack of rights")
		}
		return nil, apiErr
	}

	return resp, nil
}
