package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestExecutor(t *testing.T, rt *fakeRuntime, cfg ExecutorConfig) (*Executor, *Manager) {
	t.Helper()
	m := newTestManager(t, rt)
	return NewExecutor(m, cfg), m
}

func TestRun_Echo(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	res, err := e.Run(context.Background(), "  echo hello ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "hello\n" || res.ExitCode != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Command != "echo hello" || res.Distro != "arch" {
		t.Errorf("unexpected command/distro %q/%q", res.Command, res.Distro)
	}
	if res.ExecID == "" {
		t.Error("expected an exec ID")
	}
	if res.Truncated || res.Repaired || res.Notice != "" {
		t.Errorf("unexpected flags %+v", res)
	}
}

func TestRun_NonzeroExitIsNotAnError(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	res, err := e.Run(context.Background(), "fail")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 || res.Output != "boom\n" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	if _, err := e.Run(context.Background(), "   "); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if creates, _, _ := rt.stats(); creates != 0 {
		t.Error("empty command created a container")
	}
}

func TestRun_ValidateHook(t *testing.T) {
	rt := newFakeRuntime()
	denied := errors.New("denied")
	e, _ := newTestExecutor(t, rt, ExecutorConfig{
		Validate: func(cmd string) error {
			if strings.HasPrefix(cmd, "rm ") {
				return denied
			}
			return nil
		},
	})

	if _, err := e.Run(context.Background(), "rm -rf /"); !errors.Is(err, denied) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if creates, _, _ := rt.stats(); creates != 0 {
		t.Error("rejected command reached the runtime")
	}
	if _, err := e.Run(context.Background(), "echo ok"); err != nil {
		t.Fatalf("allowed command failed: %v", err)
	}
}

func TestRun_TruncatesOutput(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	res, err := e.Run(context.Background(), "big")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated")
	}
	if len(res.Output) > DefaultMaxOutput {
		t.Errorf("output is %d bytes, limit %d", len(res.Output), DefaultMaxOutput)
	}
	if !utf8.ValidString(res.Output) {
		t.Error("truncation split a rune")
	}
	if !strings.HasSuffix(res.Output, truncationMarker) {
		t.Error("missing truncation marker")
	}
}

func TestRun_InvalidUTF8Replaced(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	res, err := e.Run(context.Background(), "binary")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "ok�" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestTruncate(t *testing.T) {
	if got, cut := truncate("short", 64); got != "short" || cut {
		t.Errorf("short input changed: %q %v", got, cut)
	}

	exact := strings.Repeat("x", 64)
	if got, cut := truncate(exact, 64); got != exact || cut {
		t.Error("input at the limit should not be truncated")
	}

	// Every byte offset lands on or inside a 3-byte rune.
	in := strings.Repeat("日本語", 100)
	for max := 64; max < 80; max++ {
		got, cut := truncate(in, max)
		if !cut || len(got) > max || !utf8.ValidString(got) {
			t.Errorf("truncate(max=%d) = %d bytes, valid=%v", max, len(got), utf8.ValidString(got))
		}
	}
}

func TestNewExecutor_MaxOutputFloor(t *testing.T) {
	e := NewExecutor(nil, ExecutorConfig{MaxOutput: 10})
	if e.maxOutput != minMaxOutput {
		t.Errorf("maxOutput = %d, want %d", e.maxOutput, minMaxOutput)
	}
}

func TestRun_RepairsVanishedContainer(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})
	ctx := context.Background()

	if _, err := e.Run(ctx, "echo one"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rt.mu.Lock()
	rt.vanishOnNextExec = true
	rt.mu.Unlock()

	res, err := e.Run(ctx, "echo two")
	if err != nil {
		t.Fatalf("Run after vanish: %v", err)
	}
	if res.Output != "two\n" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if !res.Repaired || res.Notice != RepairNotice {
		t.Errorf("expected repair notice, got %+v", res)
	}
	if creates, _, _ := rt.stats(); creates != 2 {
		t.Errorf("expected 2 creates, got %d", creates)
	}
}

func TestRun_HealthyContainerFoldsDiagnostic(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	res, err := e.Run(context.Background(), "svc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 || res.Output != "Error: service nginx is not running\n" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Repaired {
		t.Error("healthy container reported as repaired")
	}

	rt.mu.Lock()
	execs := len(rt.execIn)
	rt.mu.Unlock()
	if execs != 1 {
		t.Errorf("command executed %d times, want 1", execs)
	}
	if creates, removes, _ := rt.stats(); creates != 1 || removes != 0 {
		t.Errorf("creates=%d removes=%d, want 1 and 0", creates, removes)
	}
}

func TestRun_RepairsDeadContainerBeforeExec(t *testing.T) {
	rt := newFakeRuntime()
	e, m := newTestExecutor(t, rt, ExecutorConfig{})
	ctx := context.Background()

	r, _ := m.EnsureReady(ctx)
	rt.destroy(r.ContainerID)

	res, err := e.Run(ctx, "echo back")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Repaired || res.Output != "back\n" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRun_Timeout(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{Timeout: 50 * time.Millisecond})

	res, err := e.Run(context.Background(), "sleep 100")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut || res.ExitCode != TimeoutExitCode {
		t.Errorf("expected timeout result, got %+v", res)
	}
	if _, _, kills := rt.stats(); kills != 1 {
		t.Errorf("expected 1 kill, got %d", kills)
	}
}

func TestRun_CallerCancel(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx, "sleep 100")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller's deadline error, got %v", err)
	}
	if _, _, kills := rt.stats(); kills != 1 {
		t.Errorf("expected 1 kill, got %d", kills)
	}
}

func TestRun_ConcurrentFirstUseCreatesOnce(t *testing.T) {
	rt := newFakeRuntime()
	rt.createDelay = 20 * time.Millisecond
	e, _ := newTestExecutor(t, rt, ExecutorConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Run(context.Background(), "echo hi"); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if creates, _, _ := rt.stats(); creates != 1 {
		t.Errorf("expected 1 create, got %d", creates)
	}
}

func TestSwitchWaitsForInflightCommand(t *testing.T) {
	rt := newFakeRuntime()
	e, m := newTestExecutor(t, rt, ExecutorConfig{})
	ctx := context.Background()

	type outcome struct {
		output string
		err    error
	}
	runDone := make(chan outcome, 1)
	go func() {
		res, err := e.Run(ctx, "wait")
		if err != nil {
			runDone <- outcome{err: err}
			return
		}
		runDone <- outcome{output: res.Output}
	}()

	select {
	case <-rt.started:
	case <-time.After(2 * time.Second):
		t.Fatal("command never started")
	}

	switchDone := make(chan error, 1)
	go func() {
		_, err := m.SwitchDistro(ctx, "alpine")
		switchDone <- err
	}()

	select {
	case err := <-switchDone:
		t.Fatalf("switch finished while a command was running (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(rt.gate)

	out := <-runDone
	if out.err != nil || out.output != "done\n" {
		t.Fatalf("in-flight command disturbed: %+v", out)
	}
	if err := <-switchDone; err != nil {
		t.Fatalf("SwitchDistro: %v", err)
	}
	if m.Status().Distro != "alpine" {
		t.Errorf("expected alpine after switch, got %s", m.Status().Distro)
	}
}

func TestScenario_SwitchBetweenDistros(t *testing.T) {
	rt := newFakeRuntime()
	e, m := newTestExecutor(t, rt, ExecutorConfig{})
	ctx := context.Background()

	first, err := e.Run(ctx, "echo hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Distro != "arch" {
		t.Errorf("expected arch, got %s", first.Distro)
	}

	if _, err := m.SwitchDistro(ctx, "alpine"); err != nil {
		t.Fatalf("SwitchDistro: %v", err)
	}

	second, err := e.Run(ctx, "echo hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.Distro != "alpine" {
		t.Errorf("expected alpine, got %s", second.Distro)
	}

	rt.mu.Lock()
	execIn := append([]string(nil), rt.execIn...)
	rt.mu.Unlock()
	if len(execIn) != 2 || execIn[0] == execIn[1] {
		t.Errorf("expected the commands to run in different containers, got %v", execIn)
	}
}
