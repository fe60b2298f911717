package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/pkg/types"
)

// Config holds all configuration for the shellbot process.
type Config struct {
	// Discord
	DiscordToken   string
	DiscordGuildID string // register commands for one guild only; empty = global

	// Sandbox
	Runtime         string // "docker" or "podman"
	DefaultDistro   string
	DistrosFile     string // optional YAML distro table
	Distros         []types.DistroEntry
	ContainerPrefix string

	// Hardening
	Memory     string
	CPUQuota   int64
	PidsLimit  int
	ReadOnly   bool
	CapDrop    []string
	AllowedEnv []string
	Network    string // empty = runtime default

	// Execution
	MaxOutput      int
	ExecTimeoutSec int // 0 = no timeout

	// HTTP API
	APIAddr string
	APIKey  string

	// Events
	NATSURL    string // empty disables the JetStream publisher
	RedisURL   string // empty disables the status beacon
	InstanceID string

	// AWS Secrets Manager. The secret is a JSON object keyed by env var name
	// (e.g. SHELLBOT_DISCORD_TOKEN). Env vars take precedence over secret values.
	SecretsARN         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Load reads configuration from environment variables with sensible defaults.
// If SHELLBOT_SECRETS_ARN is set, secrets are fetched from AWS Secrets Manager
// first, then environment variables are applied on top (env vars take precedence).
func Load() (*Config, error) {
	if arn := os.Getenv("SHELLBOT_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		DiscordToken:   envOrDefault("SHELLBOT_DISCORD_TOKEN", os.Getenv("DISCORD_TOKEN")),
		DiscordGuildID: os.Getenv("SHELLBOT_DISCORD_GUILD_ID"),

		Runtime:         envOrDefault("SHELLBOT_RUNTIME", "docker"),
		DefaultDistro:   envOrDefault("SHELLBOT_DEFAULT_DISTRO", distro.DefaultActive),
		DistrosFile:     os.Getenv("SHELLBOT_DISTROS_FILE"),
		Distros:         distro.DefaultEntries(),
		ContainerPrefix: envOrDefault("SHELLBOT_CONTAINER_PREFIX", "discord-linux-shell"),

		Memory:     envOrDefault("SHELLBOT_MEMORY", "256m"),
		PidsLimit:  envOrDefaultInt("SHELLBOT_PIDS_LIMIT", 256),
		ReadOnly:   envOrDefault("SHELLBOT_READ_ONLY", "true") == "true",
		CapDrop:    envList("SHELLBOT_CAP_DROP", "ALL"),
		AllowedEnv: envList("SHELLBOT_ALLOWED_ENV", "PATH,LANG,TERM"),
		Network:    os.Getenv("SHELLBOT_NETWORK"),

		MaxOutput: envOrDefaultInt("SHELLBOT_MAX_OUTPUT", 1900),

		APIAddr: envOrDefault("SHELLBOT_API_ADDR", ":8080"),
		APIKey:  os.Getenv("SHELLBOT_API_KEY"),

		NATSURL:    os.Getenv("SHELLBOT_NATS_URL"),
		RedisURL:   os.Getenv("SHELLBOT_REDIS_URL"),
		InstanceID: envOrDefault("SHELLBOT_INSTANCE_ID", hostname),

		SecretsARN:         os.Getenv("SHELLBOT_SECRETS_ARN"),
		AWSAccessKeyID:     os.Getenv("SHELLBOT_AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("SHELLBOT_AWS_SECRET_ACCESS_KEY"),
	}

	quota, err := strconv.ParseInt(envOrDefault("SHELLBOT_CPU_QUOTA", "20000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SHELLBOT_CPU_QUOTA: %w", err)
	}
	cfg.CPUQuota = quota

	if v := os.Getenv("SHELLBOT_EXEC_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SHELLBOT_EXEC_TIMEOUT_SEC %q", v)
		}
		cfg.ExecTimeoutSec = n
	}

	if cfg.DistrosFile != "" {
		df, err := LoadDistrosFile(cfg.DistrosFile)
		if err != nil {
			return nil, err
		}
		cfg.Distros = df.Distros
		if df.Default != "" && os.Getenv("SHELLBOT_DEFAULT_DISTRO") == "" {
			cfg.DefaultDistro = df.Default
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at container creation.
func (c *Config) Validate() error {
	switch c.Runtime {
	case "docker", "podman":
	default:
		return fmt.Errorf("invalid SHELLBOT_RUNTIME %q: want docker or podman", c.Runtime)
	}
	if _, err := distro.New(c.Distros, c.DefaultDistro); err != nil {
		return fmt.Errorf("invalid distro configuration: %w", err)
	}
	if c.MaxOutput <= 0 {
		return errors.New("SHELLBOT_MAX_OUTPUT must be positive")
	}
	if c.CPUQuota < 0 || c.PidsLimit < 0 {
		return errors.New("resource limits must not be negative")
	}
	return nil
}

// Hardening builds the container hardening profile from the configured limits.
func (c *Config) Hardening() types.Hardening {
	h := types.DefaultHardening()
	h.Memory = c.Memory
	h.CPUQuota = c.CPUQuota
	h.PidsLimit = c.PidsLimit
	h.ReadOnlyRoot = c.ReadOnly
	h.CapDrop = c.CapDrop
	h.AllowedEnv = c.AllowedEnv
	h.NetworkMode = c.Network
	return h
}

// ExecTimeout returns the per-command deadline, zero when disabled.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSec) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(envOrDefault(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Static credentials are used when
// SHELLBOT_AWS_ACCESS_KEY_ID is set, otherwise the default credential chain.
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if region := regionFromARN(arn); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if id := os.Getenv("SHELLBOT_AWS_ACCESS_KEY_ID"); id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, os.Getenv("SHELLBOT_AWS_SECRET_ACCESS_KEY"), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}
	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}

	applied, total, err := applySecrets(*result.SecretString)
	if err != nil {
		return err
	}
	log.Printf("config: loaded %d secrets from Secrets Manager (%d keys in secret, env overrides take precedence)", applied, total)
	return nil
}

// applySecrets sets each key of a JSON object secret in the environment
// unless it is already set.
func applySecrets(secretJSON string) (applied, total int, err error) {
	var secrets map[string]string
	if err := json.Unmarshal([]byte(secretJSON), &secrets); err != nil {
		return 0, 0, fmt.Errorf("parse secret JSON: %w", err)
	}
	for key, value := range secrets {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			applied++
		}
	}
	return applied, len(secrets), nil
}

func regionFromARN(arn string) string {
	if parts := strings.Split(arn, ":"); len(parts) >= 4 {
		return parts[3]
	}
	return ""
}
