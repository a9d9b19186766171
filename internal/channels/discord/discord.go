// Package discord implements the Discord collaborator-contract binding
// (A3): one bot session, each bound agent answering exactly one Discord
// channel (agents.channel_id is unique), permission-ask prompts
// resolved via an Allow/Deny reaction pair, and outbound sends passed
// through a per-channel egress.Limiter.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chorus-run/chorus/internal/agent"
	"github.com/chorus-run/chorus/internal/askmediator"
	"github.com/chorus-run/chorus/internal/egress"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/threadmgr"
)

const (
	allowEmoji = "✅"
	denyEmoji  = "❌"
	maxLen     = 2000
)

// Channel connects to Discord via the bot gateway and routes inbound
// messages to the agent bound to their channel.
type Channel struct {
	session   *discordgo.Session
	db        store.Store
	host      *agent.Host
	botUserID string

	limiters sync.Map // channelID string -> *egress.Limiter
	pending  sync.Map // "channelID:messageID" -> chan askmediator.Decision
}

// New constructs a Channel bound to a bot token.
func New(token string, db store.Store, host *agent.Host) (*Channel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions

	return &Channel{session: session, db: db, host: host}, nil
}

// Start opens the gateway connection and registers handlers.
func (c *Channel) Start(ctx context.Context) error {
	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleReaction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("discord: fetch identity: %w", err)
	}
	c.botUserID = user.ID
	slog.Info("discord bot connected", "component", "discord", "username", user.Username)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(context.Context) error { return c.session.Close() }

// limiterFor returns (creating if absent) the egress.Limiter guarding
// sends to a Discord channel at the built-in 5 messages / 5 seconds
// sliding window (spec §2's default rate).
func (c *Channel) limiterFor(channelID string) *egress.Limiter {
	if l, ok := c.limiters.Load(channelID); ok {
		return l.(*egress.Limiter)
	}
	l := egress.New(egress.DefaultMax, egress.DefaultWindow, func(ctx context.Context, payload any) error {
		chunk := payload.(string)
		_, err := c.session.ChannelMessageSend(channelID, chunk)
		return err
	})
	actual, _ := c.limiters.LoadOrStore(channelID, l)
	return actual.(*egress.Limiter)
}

// Send implements agent.Sender: it resolves the agent's bound channel,
// chunks content to Discord's 2000-char limit, and sends each chunk
// through the channel's rate limiter.
func (c *Channel) Send(ctx context.Context, agentName string, threadID int, content string) error {
	a, err := c.db.GetAgent(ctx, agentName)
	if err != nil {
		return err
	}
	if a == nil || a.ChannelID == "" {
		return fmt.Errorf("discord: agent %q has no bound channel", agentName)
	}
	limiter := c.limiterFor(a.ChannelID)
	for _, chunk := range chunkMessage(content) {
		if err := limiter.Send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// chunkMessage splits content into Discord-sized chunks, preferring to
// cut at a newline past the halfway point so a chunk boundary doesn't
// split a sentence mid-word when one is available nearby.
func chunkMessage(content string) []string {
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	return chunks
}

// handleMessage routes an inbound Discord message to the agent bound to
// its channel, creating or injecting into that agent's main thread per
// RouteInterjection.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	ctx := context.Background()
	boundAgent, err := c.db.GetAgentByChannel(ctx, m.ChannelID)
	if err != nil {
		slog.Warn("discord: agent lookup failed", "component", "discord", "error", err)
		return
	}
	if boundAgent == nil {
		return
	}
	rt, ok := c.host.Get(boundAgent.Name)
	if !ok {
		slog.Warn("discord: bound agent not running", "component", "discord", "agent", boundAgent.Name)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	threads := rt.Threads()
	if main, ok := threads.GetMainThread(); ok && main.Status() == threadmgr.Running {
		switch threads.RouteInterjection(ctx, content) {
		case threadmgr.Inject:
			if err := threads.Inject(main.ID, threadmgr.Message{Role: "user", Content: content, Timestamp: time.Now().UTC()}); err != nil {
				slog.Warn("discord: inject failed", "component", "discord", "error", err)
			}
			return
		case threadmgr.NewThread:
			// fall through to spawn a fresh branch below.
		}
	}

	t := threads.CreateThread(content, true)
	threads.StartThread(ctx, t)
}

// PrompterFor returns an askmediator.Prompter scoped to one agent's
// bound Discord channel, for use when constructing that agent's
// askmediator.Mediator. Each agent answers exactly one channel, so the
// channel id is resolved once here rather than threaded through every
// Prompt call.
func (c *Channel) PrompterFor(agentName string) askmediator.Prompter {
	return &agentPrompter{channel: c, agentName: agentName}
}

type agentPrompter struct {
	channel   *Channel
	agentName string
}

func (p *agentPrompter) Prompt(ctx context.Context, userID, toolName, actionString string, rawArgs map[string]any) (askmediator.Decision, error) {
	a, err := p.channel.db.GetAgent(ctx, p.agentName)
	if err != nil {
		return askmediator.Denied, err
	}
	if a == nil || a.ChannelID == "" {
		return askmediator.Denied, fmt.Errorf("discord: agent %q has no bound channel", p.agentName)
	}
	return p.channel.prompt(ctx, a.ChannelID, toolName, actionString)
}

// prompt posts a message describing the pending action and waits for
// an Allow/Deny reaction, bounded by ctx's deadline (the mediator's
// 120s default).
func (c *Channel) prompt(ctx context.Context, channelID, toolName, actionString string) (askmediator.Decision, error) {
	text := fmt.Sprintf("Permission requested for `%s`\n`%s`\nReact %s to allow or %s to deny.", toolName, actionString, allowEmoji, denyEmoji)
	msg, err := c.session.ChannelMessageSend(channelID, text)
	if err != nil {
		return askmediator.Denied, err
	}
	_ = c.session.MessageReactionAdd(channelID, msg.ID, allowEmoji)
	_ = c.session.MessageReactionAdd(channelID, msg.ID, denyEmoji)

	key := channelID + ":" + msg.ID
	ch := make(chan askmediator.Decision, 1)
	c.pending.Store(key, ch)
	defer c.pending.Delete(key)

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return askmediator.Denied, ctx.Err()
	}
}

// handleReaction resolves a pending Prompt wait on the first Allow or
// Deny reaction from any user other than the bot. The reacting user is
// not compared with the user the prompt was raised for.
func (c *Channel) handleReaction(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == c.botUserID {
		return
	}
	key := r.ChannelID + ":" + r.MessageID
	v, ok := c.pending.Load(key)
	if !ok {
		return
	}
	ch := v.(chan askmediator.Decision)
	switch r.Emoji.Name {
	case allowEmoji:
		select {
		case ch <- askmediator.Allowed:
		default:
		}
	case denyEmoji:
		select {
		case ch <- askmediator.Denied:
		default:
		}
	}
}
