package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// DefaultConfigFile is the configuration file looked up when --config is
// not given.
const DefaultConfigFile = "tablepp.yaml"

// Config represents the tablepp.yaml configuration file.
type Config struct {
	DatabaseURL string        `yaml:"database_url"`
	Dialect     string        `yaml:"dialect"`
	GroupPolicy string        `yaml:"group_policy"`
	Timeout     time.Duration `yaml:"timeout"`
	User        *UserConfig   `yaml:"user"`
}

// UserConfig is the identity commands act as. Without it the CLI acts as a
// superuser.
type UserConfig struct {
	ID        int64   `yaml:"id"`
	Username  string  `yaml:"username"`
	Superuser bool    `yaml:"superuser"`
	Groups    []int64 `yaml:"groups"`
}

// loadConfig loads configuration from file, env vars, and CLI flags.
// Precedence: CLI flags > env vars > config file > defaults
func loadConfig(g *globals) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(g.configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", g.configFile, err)
		}
		cfg.DatabaseURL = expandEnvVars(cfg.DatabaseURL)
	case !os.IsNotExist(err) || g.configExplicit:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if env := os.Getenv("TABLEPP_DATABASE_URL"); env != "" {
		cfg.DatabaseURL = env
	} else if env := os.Getenv("DATABASE_URL"); env != "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = env
	}

	if g.databaseURL != "" {
		cfg.DatabaseURL = g.databaseURL
	}
	if g.dialect != "" {
		cfg.Dialect = g.dialect
	}
	return cfg, nil
}

// expandEnvVars expands ${VAR} patterns in a string.
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

// user returns the identity the CLI acts as.
func (c *Config) user() tablepp.User {
	if c.User == nil {
		return tablepp.User{Username: "cli", Superuser: true}
	}
	return tablepp.User{
		ID:        c.User.ID,
		Username:  c.User.Username,
		Superuser: c.User.Superuser,
		Groups:    c.User.Groups,
	}
}

// groupPolicy parses the group_policy setting.
func (c *Config) groupPolicy() (tablepp.GroupPolicy, error) {
	switch c.GroupPolicy {
	case "", "reject_wins":
		return tablepp.RejectWins, nil
	case "first_found":
		return tablepp.FirstFound, nil
	}
	return 0, fmt.Errorf("unknown group_policy %q (want reject_wins or first_found)", c.GroupPolicy)
}

// newClient creates a tablepp client from the resolved configuration.
func newClient(g *globals, cfg *Config) (*tablepp.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, tablepp.ErrMissingDatabaseURL
	}
	policy, err := cfg.groupPolicy()
	if err != nil {
		return nil, err
	}

	opts := []tablepp.Option{
		tablepp.WithDatabaseURL(cfg.DatabaseURL),
		tablepp.WithGroupPolicy(policy),
		tablepp.WithLogger(g.logger()),
	}
	if cfg.Dialect != "" {
		opts = append(opts, tablepp.WithDialect(cfg.Dialect))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, tablepp.WithTimeout(cfg.Timeout))
	}
	return tablepp.New(opts...)
}

// logger returns the client logger: debug output on stderr with --verbose,
// warnings only otherwise.
func (g *globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: level}))
}
