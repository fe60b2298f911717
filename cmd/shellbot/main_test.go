package main

import "testing"

func TestRunReturnsConfigError(t *testing.T) {
	t.Setenv("SHELLBOT_SECRETS_ARN", "")
	t.Setenv("SHELLBOT_RUNTIME", "lxc")

	if err := run(); err == nil {
		t.Fatal("expected run to return the config error")
	}
}

func TestRunReturnsRuntimeError(t *testing.T) {
	t.Setenv("SHELLBOT_SECRETS_ARN", "")
	t.Setenv("SHELLBOT_RUNTIME", "docker")
	t.Setenv("PATH", t.TempDir())

	if err := run(); err == nil {
		t.Fatal("expected run to return the missing runtime error")
	}
}
