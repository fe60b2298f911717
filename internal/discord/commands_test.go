package discord

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/internal/sandbox"
	"github.com/shellbot/shellbot/pkg/types"
)

type stubSandbox struct {
	result    *types.ExecutionResult
	termErr   error
	active    string
	distroErr error
	switched  []string
	complete  []string
}

func (s *stubSandbox) Term(ctx context.Context, command string) (*types.ExecutionResult, error) {
	if command == "" {
		return nil, sandbox.ErrEmptyCommand
	}
	return s.result, s.termErr
}

func (s *stubSandbox) Distros() []types.DistroListing {
	return []types.DistroListing{
		{Name: "alpine", Image: "alpine:latest", Active: s.active == "alpine"},
		{Name: "arch", Image: "archlinux:latest", Active: s.active == "arch"},
	}
}

func (s *stubSandbox) Distro(ctx context.Context, name string) (*types.DistroSwitchResponse, error) {
	s.switched = append(s.switched, name)
	if s.distroErr != nil {
		return nil, s.distroErr
	}
	changed := name != s.active
	prev := s.active
	s.active = name
	return &types.DistroSwitchResponse{Previous: prev, Current: name, Changed: changed}, nil
}

func (s *stubSandbox) Complete(prefix string) []string {
	return s.complete
}

func collect() (*[]string, func(string)) {
	var msgs []string
	return &msgs, func(m string) { msgs = append(msgs, m) }
}

func TestTerm_RepairNoticeComesFirst(t *testing.T) {
	sb := &stubSandbox{result: &types.ExecutionResult{
		Distro: "arch", Command: "echo hi", Output: "hi\n", Repaired: true, Notice: sandbox.RepairNotice,
	}}
	msgs, send := collect()

	NewCommands(sb).Term(context.Background(), " echo hi ", send)

	if len(*msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", *msgs)
	}
	if (*msgs)[0] != sandbox.RepairNotice {
		t.Errorf("first message = %q, want the repair notice", (*msgs)[0])
	}
	if (*msgs)[1] != "```bash\n[arch] $ echo hi\nhi\n```" {
		t.Errorf("unexpected result message %q", (*msgs)[1])
	}
}

func TestTerm_Errors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		err     error
		want    string
	}{
		{"empty", "  ", nil, "❌ Please provide a command to run."},
		{"runtime down", "ls", container.ErrRuntimeUnavailable, "❌ The container runtime is unavailable. Try again later."},
		{"other", "ls", fmt.Errorf("boom"), "❌ Execution failure: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, send := collect()
			NewCommands(&stubSandbox{termErr: tt.err}).Term(context.Background(), tt.command, send)
			if len(*msgs) != 1 || (*msgs)[0] != tt.want {
				t.Errorf("messages = %v, want [%s]", *msgs, tt.want)
			}
		})
	}
}

func TestDistro_Switch(t *testing.T) {
	sb := &stubSandbox{active: "arch"}
	msgs, send := collect()

	NewCommands(sb).Distro(context.Background(), "Alpine", send)

	want := []string{
		"🌐 Switching sandbox to `alpine` (alpine:latest)…",
		"✅ Sandbox switched to `alpine`.",
	}
	if !reflect.DeepEqual(*msgs, want) {
		t.Errorf("messages = %v, want %v", *msgs, want)
	}
}

func TestDistro_AlreadyActive(t *testing.T) {
	sb := &stubSandbox{active: "arch"}
	msgs, send := collect()

	NewCommands(sb).Distro(context.Background(), "arch", send)

	if len(sb.switched) != 1 {
		t.Error("expected readiness to be ensured through the service")
	}
	want := []string{"✅ Sandbox is already running `arch`."}
	if !reflect.DeepEqual(*msgs, want) {
		t.Errorf("messages = %v, want %v", *msgs, want)
	}
}

func TestDistro_Unsupported(t *testing.T) {
	sb := &stubSandbox{active: "arch"}
	msgs, send := collect()

	NewCommands(sb).Distro(context.Background(), "gentoo", send)

	if len(sb.switched) != 0 {
		t.Error("unsupported distro reached the service")
	}
	want := []string{"❌ `gentoo` is unsupported. Supported options: alpine, arch"}
	if !reflect.DeepEqual(*msgs, want) {
		t.Errorf("messages = %v, want %v", *msgs, want)
	}
}

func TestDistro_Failure(t *testing.T) {
	sb := &stubSandbox{active: "arch", distroErr: fmt.Errorf("switch to alpine: pull failed")}
	msgs, send := collect()

	NewCommands(sb).Distro(context.Background(), "alpine", send)

	if len(*msgs) != 2 || (*msgs)[1] != "❌ Failed to switch distro: switch to alpine: pull failed" {
		t.Errorf("unexpected messages %v", *msgs)
	}

	sb.distroErr = fmt.Errorf("%q: %w", "alpine", distro.ErrNotFound)
	msgs, send = collect()
	NewCommands(sb).Distro(context.Background(), "alpine", send)
	if got := (*msgs)[len(*msgs)-1]; got != "❌ `alpine` is unsupported. Supported options: alpine, arch" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestAutocomplete_Capped(t *testing.T) {
	names := make([]string, 30)
	for i := range names {
		names[i] = fmt.Sprintf("d%02d", i)
	}
	choices := NewCommands(&stubSandbox{complete: names}).Autocomplete("d")
	if len(choices) != maxChoices {
		t.Fatalf("expected %d choices, got %d", maxChoices, len(choices))
	}
	if choices[0].Name != "d00" || choices[0].Value != "d00" {
		t.Errorf("unexpected first choice %+v", choices[0])
	}
}
