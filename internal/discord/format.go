package discord

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shellbot/shellbot/pkg/types"
)

// MessageLimit is the longest message Discord accepts, in characters.
const MessageLimit = 2000

const killedExitCode = 137 // 128 + SIGKILL

// FormatResult renders a command result as a chat message.
func FormatResult(res *types.ExecutionResult) string {
	prompt := fmt.Sprintf("[%s] $ %s", res.Distro, res.Command)
	output := strings.TrimRight(res.Output, "\n")

	var b strings.Builder
	switch {
	case res.TimedOut:
		b.WriteString("```diff\n- ⏰ Command TIMEOUT (killed).\n```")
	case res.ExitCode == killedExitCode:
		b.WriteString("```diff\n- ⏰ Command KILLED (exit 137).\n```")
	}

	if output != "" {
		fmt.Fprintf(&b, "```bash\n%s\n%s\n```", prompt, output)
	}
	if res.ExitCode != 0 && output == "" && !res.TimedOut && res.ExitCode != killedExitCode {
		fmt.Fprintf(&b, "```diff\n- ERROR:\nCommand failed with exit code %d.\n```", res.ExitCode)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "```bash\n%s\n✨ Command executed (exit %d) but produced no output.\n```", prompt, res.ExitCode)
	}
	return Clamp(b.String())
}

// FormatDistros renders the distro list with the active entry marked.
func FormatDistros(listings []types.DistroListing) string {
	lines := make([]string, 0, len(listings))
	for _, l := range listings {
		line := fmt.Sprintf("- %s: %s", l.Name, l.Image)
		if l.Active {
			line += " **(Active)**"
		}
		lines = append(lines, line)
	}
	return Clamp("🌐 Supported distros:\n" + strings.Join(lines, "\n"))
}

// FormatUnsupported tells the user a distro name is not in the registry.
func FormatUnsupported(name string, listings []types.DistroListing) string {
	names := make([]string, 0, len(listings))
	for _, l := range listings {
		names = append(names, l.Name)
	}
	return Clamp(fmt.Sprintf("❌ `%s` is unsupported. Supported options: %s", name, strings.Join(names, ", ")))
}

// Clamp shortens msg to MessageLimit characters, closing the code block it
// cuts into.
func Clamp(msg string) string {
	if utf8.RuneCountInString(msg) <= MessageLimit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MessageLimit-3]) + "```"
}
