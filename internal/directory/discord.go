package directory

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	recerrors "github.com/tradesuite/rolesync/internal/errors"
	"github.com/tradesuite/rolesync/pkg/discord"
)

// DiscordDirectory implements Directory on the Discord REST API for one
// guild. The gateway connection is only consulted for health reporting.
type DiscordDirectory struct {
	client  *discord.Client
	gateway *discord.Gateway
	guildID string
}

// NewDiscordDirectory wraps a Discord client as a membership directory.
func NewDiscordDirectory(client *discord.Client, gateway *discord.Gateway, guildID string) *DiscordDirectory {
	return &DiscordDirectory{client: client, gateway: gateway, guildID: guildID}
}

func (d *DiscordDirectory) FindRole(ctx context.Context, name string) (*Role, error) {
	roles, err := d.client.GuildRoles(ctx, d.guildID)
	if err != nil {
		return nil, translate("find_role", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return &Role{ID: role.ID, Name: role.Name}, nil
		}
	}
	return nil, nil
}

func (d *DiscordDirectory) CreateRole(ctx context.Context, name string) (*Role, error) {
	role, err := d.client.CreateRole(ctx, d.guildID, name)
	if err != nil {
		return nil, translate("create_role", err)
	}
	log.Info().Str("role", name).Msg("Created directory role")
	return &Role{ID: role.ID, Name: role.Name}, nil
}

func (d *DiscordDirectory) MemberRoleIDs(ctx context.Context, memberID string) ([]string, error) {
	member, err := d.client.GuildMember(ctx, d.guildID, memberID)
	if err != nil {
		return nil, translate("member_roles", err)
	}
	return member.Roles, nil
}

func (d *DiscordDirectory) GrantRole(ctx context.Context, memberID string, role Role) error {
	if err := d.client.AddMemberRole(ctx, d.guildID, memberID, role.ID); err != nil {
		return translate("grant_role", err)
	}
	return nil
}

func (d *DiscordDirectory) RevokeRole(ctx context.Context, memberID string, role Role) error {
	if err := d.client.RemoveMemberRole(ctx, d.guildID, memberID, role.ID); err != nil {
		return translate("revoke_role", err)
	}
	return nil
}

func (d *DiscordDirectory) RemoveMember(ctx context.Context, memberID, reason string) error {
	if err := d.client.KickMember(ctx, d.guildID, memberID, reason); err != nil {
		return translate("remove_member", err)
	}
	return nil
}

// DirectMessage sends a DM, failing silently when the member forbids
// messages from the bot.
func (d *DiscordDirectory) DirectMessage(ctx context.Context, memberID, text string) error {
	channel, err := d.client.CreateDMChannel(ctx, memberID)
	if err != nil {
		return translate("direct_message", err)
	}
	if err := d.client.CreateMessage(ctx, channel.ID, text); err != nil {
		var apiErr *discord.APIError
		if errors.As(err, &apiErr) && apiErr.IsPermission() {
			log.Debug().Str("member", memberID).Msg("Member does not accept DMs")
			return nil
		}
		return translate("direct_message", err)
	}
	return nil
}

func (d *DiscordDirectory) Connected() bool {
	return d.gateway != nil && d.gateway.Connected()
}

// translate maps Discord API failures onto the reconciliation error
// taxonomy so the coordinator can tell refused calls from outages.
func translate(op string, err error) error {
	var apiErr *discord.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsPermission() {
			return recerrors.New(recerrors.ErrorTypePermission, op, "", err).WithStatusCode(apiErr.Status)
		}
		if apiErr.Status == 404 {
			return recerrors.New(recerrors.ErrorTypeNotFound, op, "", err).WithStatusCode(apiErr.Status)
		}
	}
	return recerrors.WrapTransient(op, "", err)
}
