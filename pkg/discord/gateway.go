package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Gateway intents this client needs: guilds, member joins, DMs, and DM
// message content.
const (
	intentGuilds         = 1 << 0
	intentGuildMembers   = 1 << 1
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15

	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
)

// Gateway opcodes.
const (
	opDispatch        = 0
	opHeartbeat       = 1
	opIdentify        = 2
	opReconnect       = 7
	opInvalidSession  = 9
	opHello           = 10
	opHeartbeatAck    = 11
)

// GuildMemberAdd is the member-join dispatch payload.
type GuildMemberAdd struct {
	User    User   `json:"user"`
	GuildID string `json:"guild_id"`
}

// Gateway maintains the bot's websocket connection and dispatches the
// events the reconciler cares about.
type Gateway struct {
	client *Client
	token  string

	// OnReady fires when the gateway session is established.
	OnReady func()
	// OnMessageCreate fires for every MESSAGE_CREATE dispatch.
	OnMessageCreate func(Message)
	// OnGuildMemberAdd fires when a member joins a guild.
	OnGuildMemberAdd func(GuildMemberAdd)

	mu        sync.Mutex
	conn      *websocket.Conn
	seq       atomic.Int64
	connected atomic.Bool
}

type gatewayPayload struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// NewGateway builds a gateway for the same bot token as the REST client.
func NewGateway(client *Client, token string) *Gateway {
	return &Gateway{client: client, token: token}
}

// Connected reports whether the gateway session is currently up.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// Run connects and serves gateway events until ctx is cancelled,
// reconnecting with backoff after failures.
func (g *Gateway) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := g.connectAndServe(ctx)
		g.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("Gateway connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 60*time.Second {
			backoff *= 2
		}
	}
}

func (g *Gateway) connectAndServe(ctx context.Context) error {
	gatewayURL, err := g.client.GatewayURL(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Gateway URL lookup failed, using default endpoint")
		gatewayURL = defaultGatewayURL
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	// First frame must be HELLO with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello opcode, got %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	if err := g.identify(); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go g.heartbeatLoop(heartbeatCtx, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return fmt.Errorf("read gateway frame: %w", err)
		}
		if payload.S != nil {
			g.seq.Store(*payload.S)
		}

		switch payload.Op {
		case opDispatch:
			g.dispatch(payload)
		case opHeartbeat:
			g.sendHeartbeat()
		case opHeartbeatAck:
			// nothing to do
		case opReconnect, opInvalidSession:
			return fmt.Errorf("gateway requested reconnect (op %d)", payload.Op)
		}
	}
}

func (g *Gateway) dispatch(payload gatewayPayload) {
	switch payload.T {
	case "READY":
		g.connected.Store(true)
		log.Info().Msg("Discord gateway session established")
		if g.OnReady != nil {
			g.OnReady()
		}
	case "MESSAGE_CREATE":
		var message Message
		if err := json.Unmarshal(payload.D, &message); err != nil {
			log.Warn().Err(err).Msg("Failed to decode message event")
			return
		}
		if g.OnMessageCreate != nil {
			g.OnMessageCreate(message)
		}
	case "GUILD_MEMBER_ADD":
		var join GuildMemberAdd
		if err := json.Unmarshal(payload.D, &join); err != nil {
			log.Warn().Err(err).Msg("Failed to decode member join event")
			return
		}
		if g.OnGuildMemberAdd != nil {
			g.OnGuildMemberAdd(join)
		}
	}
}

func (g *Gateway) identify() error {
	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   g.token,
			"intents": intentGuilds | intentGuildMembers | intentDirectMessages | intentMessageContent,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "rolesync",
				"device":  "rolesync",
			},
		},
	}
	return g.writeJSON(identify)
}

func (g *Gateway) heartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sendHeartbeat()
		}
	}
}

func (g *Gateway) sendHeartbeat() {
	var seq any
	if s := g.seq.Load(); s > 0 {
		seq = s
	}
	if err := g.writeJSON(map[string]any{"op": opHeartbeat, "d": seq}); err != nil {
		log.Debug().Err(err).Msg("Failed to send gateway heartbeat")
	}
}

func (g *Gateway) writeJSON(v any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	return g.conn.WriteJSON(v)
}
