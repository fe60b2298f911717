package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/internal/metrics"
	"github.com/shellbot/shellbot/internal/sandbox"
	"github.com/shellbot/shellbot/pkg/types"
)

// Sandbox is the operation set the bot drives. *sandbox.Service implements it.
type Sandbox interface {
	Term(ctx context.Context, command string) (*types.ExecutionResult, error)
	Distros() []types.DistroListing
	Distro(ctx context.Context, name string) (*types.DistroSwitchResponse, error)
	Complete(prefix string) []string
}

// maxChoices is the most autocomplete choices Discord displays.
const maxChoices = 25

// Definitions are the slash commands the bot registers.
var Definitions = []*discordgo.ApplicationCommand{
	{
		Name:        "term",
		Description: "Execute a command in the sandbox",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "command",
			Description: "The shell command to execute",
			Required:    true,
		}},
	},
	{
		Name:        "distros",
		Description: "List all supported Linux distros",
	},
	{
		Name:        "distro",
		Description: "Switch the sandbox distro",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         "name",
			Description:  "The name of the distro to switch to (e.g., 'alpine')",
			Required:     true,
			Autocomplete: true,
		}},
	},
}

// Commands turns slash command invocations into chat messages. Each handler
// sends its messages through send in display order.
type Commands struct {
	sb Sandbox
}

// NewCommands creates command handlers backed by sb.
func NewCommands(sb Sandbox) *Commands {
	return &Commands{sb: sb}
}

// Term runs a shell command and reports the result.
func (c *Commands) Term(ctx context.Context, command string, send func(string)) {
	command = strings.TrimSpace(command)
	log.Printf("discord: /term %q", command)

	res, err := c.sb.Term(ctx, command)
	if err != nil {
		metrics.ChatCommandsTotal.WithLabelValues("term", "error").Inc()
		log.Printf("discord: execution failure for %q: %v", command, err)
		send(termError(err))
		return
	}

	metrics.ChatCommandsTotal.WithLabelValues("term", "ok").Inc()
	if res.Notice != "" {
		send(res.Notice)
	}
	send(FormatResult(res))
}

func termError(err error) string {
	switch {
	case errors.Is(err, sandbox.ErrEmptyCommand):
		return "❌ Please provide a command to run."
	case errors.Is(err, container.ErrRuntimeUnavailable):
		return "❌ The container runtime is unavailable. Try again later."
	default:
		return Clamp(fmt.Sprintf("❌ Execution failure: %v", err))
	}
}

// Distros lists the supported distros.
func (c *Commands) Distros(send func(string)) {
	metrics.ChatCommandsTotal.WithLabelValues("distros", "ok").Inc()
	send(FormatDistros(c.sb.Distros()))
}

// Distro switches the sandbox to name.
func (c *Commands) Distro(ctx context.Context, name string, send func(string)) {
	requested := strings.ToLower(strings.TrimSpace(name))
	listings := c.sb.Distros()

	var target *types.DistroListing
	for i := range listings {
		if listings[i].Name == requested {
			target = &listings[i]
			break
		}
	}
	if target == nil {
		metrics.ChatCommandsTotal.WithLabelValues("distro", "unsupported").Inc()
		send(FormatUnsupported(requested, listings))
		return
	}
	if !target.Active {
		log.Printf("discord: switching distro to %q (%s)", target.Name, target.Image)
		send(fmt.Sprintf("🌐 Switching sandbox to `%s` (%s)…", target.Name, target.Image))
	}

	resp, err := c.sb.Distro(ctx, requested)
	switch {
	case errors.Is(err, distro.ErrNotFound):
		metrics.ChatCommandsTotal.WithLabelValues("distro", "unsupported").Inc()
		send(FormatUnsupported(requested, listings))
	case errors.Is(err, container.ErrRuntimeUnavailable):
		metrics.ChatCommandsTotal.WithLabelValues("distro", "error").Inc()
		send("❌ The container runtime is unavailable. Try again later.")
	case err != nil:
		metrics.ChatCommandsTotal.WithLabelValues("distro", "error").Inc()
		log.Printf("discord: failed to switch distro: %v", err)
		send(Clamp(fmt.Sprintf("❌ Failed to switch distro: %v", err)))
	case !resp.Changed:
		metrics.ChatCommandsTotal.WithLabelValues("distro", "ok").Inc()
		send(fmt.Sprintf("✅ Sandbox is already running `%s`.", resp.Current))
	default:
		metrics.ChatCommandsTotal.WithLabelValues("distro", "ok").Inc()
		send(fmt.Sprintf("✅ Sandbox switched to `%s`.", resp.Current))
	}
}

// Autocomplete suggests distro names for the partially typed value.
func (c *Commands) Autocomplete(current string) []*discordgo.ApplicationCommandOptionChoice {
	names := c.sb.Complete(current)
	if len(names) > maxChoices {
		names = names[:maxChoices]
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, n := range names {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: n, Value: n})
	}
	return choices
}
