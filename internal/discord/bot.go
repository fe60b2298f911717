package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// Bot connects the command handlers to a Discord gateway session.
type Bot struct {
	session *discordgo.Session
	cmds    *Commands
	guildID string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot creates a bot for token. Commands are registered for guildID only
// when it is set, globally otherwise.
func NewBot(token, guildID string, sb Sandbox) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session: s,
		cmds:    NewCommands(sb),
		guildID: guildID,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)
	return b, nil
}

// Open connects to the gateway and syncs the slash commands.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, Definitions); err != nil {
		b.session.Close()
		return fmt.Errorf("sync slash commands: %w", err)
	}
	log.Printf("discord: synced %d slash commands", len(Definitions))
	return nil
}

// Close cancels in-flight commands and disconnects.
func (b *Bot) Close() error {
	b.cancel()
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("discord: logged in as %s#%s", r.User.Username, r.User.Discriminator)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.onCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.onAutocomplete(s, i)
	}
}

func (b *Bot) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	if data.Name == "distros" {
		b.cmds.Distros(func(msg string) {
			err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{Content: msg},
			})
			if err != nil {
				log.Printf("discord: respond to /distros: %v", err)
			}
		})
		return
	}

	// Commands that touch the sandbox can take longer than the 3s reply window.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("discord: defer /%s: %v", data.Name, err)
		return
	}

	send := func(msg string) {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: msg}); err != nil {
			log.Printf("discord: follow-up for /%s: %v", data.Name, err)
		}
	}

	switch data.Name {
	case "term":
		b.cmds.Term(b.ctx, optionString(data.Options, "command"), send)
	case "distro":
		b.cmds.Distro(b.ctx, optionString(data.Options, "name"), send)
	default:
		send(fmt.Sprintf("❌ Unknown command `/%s`.", data.Name))
	}
}

func (b *Bot) onAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "distro" {
		return
	}

	var current string
	for _, opt := range data.Options {
		if opt.Focused {
			current = opt.StringValue()
		}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: b.cmds.Autocomplete(current)},
	})
	if err != nil {
		log.Printf("discord: autocomplete: %v", err)
	}
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}
