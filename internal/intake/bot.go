package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradesuite/rolesync/internal/directory"
	"github.com/tradesuite/rolesync/internal/entitlement"
	recerrors "github.com/tradesuite/rolesync/internal/errors"
	"github.com/tradesuite/rolesync/internal/logging"
	"github.com/tradesuite/rolesync/pkg/discord"
)

// dmTimeout bounds how long a conversational turn may block on
// reconciliation before the user gets an error reply.
const dmTimeout = 2 * time.Minute

const verifyPrompt = "That doesn't look like a valid email. Please send the email address you used for your purchase, e.g. `myemail@example.com`."

const welcomeMessage = "Welcome! To unlock your subscriber roles, reply to this DM with the email you used for your purchase.\n\nExample: `myemail@example.com`"

// Bot turns Discord DM traffic into verification requests and replies with
// the reconciliation outcome. The conversational turn blocks until the
// reconciliation completes so the user always gets a definitive answer.
type Bot struct {
	client      *discord.Client
	directory   directory.Directory
	coordinator *entitlement.Coordinator
}

// NewBot wires the DM intake.
func NewBot(client *discord.Client, dir directory.Directory, coordinator *entitlement.Coordinator) *Bot {
	return &Bot{client: client, directory: dir, coordinator: coordinator}
}

// Attach registers the bot's handlers on a gateway connection.
func (b *Bot) Attach(gateway *discord.Gateway) {
	gateway.OnMessageCreate = b.HandleMessage
	gateway.OnGuildMemberAdd = b.HandleMemberJoin
}

// HandleMessage processes one inbound message. Only direct messages from
// humans are considered; everything else is ignored.
func (b *Bot) HandleMessage(message discord.Message) {
	if message.Author.Bot || message.GuildID != "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dmTimeout)
	defer cancel()
	ctx, requestID := logging.WithRequestID(ctx, "")

	content := strings.TrimSpace(message.Content)
	if !entitlement.PlausibleEmail(content) {
		b.reply(ctx, message.ChannelID, verifyPrompt)
		return
	}

	req := entitlement.NewRequest(entitlement.TriggerVerify, content)
	req.ID = requestID
	req.AccountID = message.Author.ID
	req.DisplayName = message.Author.Username

	log.Info().
		Str("requestID", requestID).
		Str("email", req.Email).
		Str("account", req.AccountID).
		Msg("DM verification request received")

	result := b.coordinator.Reconcile(ctx, req)
	b.reply(ctx, message.ChannelID, replyFor(result))
}

// HandleMemberJoin greets a new member with the verification prompt.
// Members who forbid DMs are skipped silently.
func (b *Bot) HandleMemberJoin(join discord.GuildMemberAdd) {
	if join.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.directory.DirectMessage(ctx, join.User.ID, welcomeMessage); err != nil {
		log.Debug().Err(err).Str("member", join.User.ID).Msg("Could not send welcome DM")
	}
}

func (b *Bot) reply(ctx context.Context, channelID, text string) {
	if err := b.client.CreateMessage(ctx, channelID, text); err != nil {
		log.Warn().Err(err).Str("channel", channelID).Msg("Failed to send DM reply")
	}
}

// replyFor translates a reconciliation result into the user-facing
// confirmation or rejection text.
func replyFor(result entitlement.Result) string {
	if result.Err != nil {
		switch {
		case errors.Is(result.Err, recerrors.ErrConflict):
			return "This email is already verified by a different Discord account. If you believe this is a mistake, contact support."
		case errors.Is(result.Err, recerrors.ErrNotFound):
			return fmt.Sprintf("No purchase was found for `%s`. Make sure you send the exact email you used at checkout.", result.Request.Email)
		default:
			return "Something went wrong while verifying your email. Please try again in a few minutes."
		}
	}

	switch result.Decision.AccessLevel {
	case entitlement.AccessFull:
		if len(result.RolesGranted) > 0 {
			return fmt.Sprintf("Email `%s` verified! Your roles are set up: %s. You now have access to all premium channels.",
				result.Request.Email, strings.Join(result.RolesGranted, ", "))
		}
		return fmt.Sprintf("Email `%s` verified! Your roles were already up to date.", result.Request.Email)
	case entitlement.AccessSetupOnly:
		return fmt.Sprintf("Email `%s` verified! Your purchase is still being set up. Roles will be assigned once an active subscription is confirmed.", result.Request.Email)
	default:
		return fmt.Sprintf("Email `%s` verified, but no active purchase was found on it yet. Roles will be assigned automatically once payment is confirmed.", result.Request.Email)
	}
}
