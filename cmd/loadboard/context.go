package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"loadboard/internal/client"
	"loadboard/internal/config"
	"loadboard/internal/logging"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiAddress prefers --api over the configured bind address.
func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if value := strings.TrimSpace(*c.apiFlag); value != "" {
			return value
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Server.APIBind
	}
	return config.Default().Server.APIBind
}

// cliLogger logs to stderr at warn level unless the config asks for debug,
// so one-shot commands and the board stay quiet.
func (c *commandContext) cliLogger() *slog.Logger {
	level := "warn"
	format := "console"
	if cfg := c.configValue(); cfg != nil {
		if strings.EqualFold(cfg.Logging.Level, "debug") {
			level = "debug"
		}
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) newClient() (*client.Client, error) {
	addr := c.apiAddress()
	cl, err := client.New(addr, c.cliLogger())
	if err != nil {
		return nil, fmt.Errorf("configure api client for %q: %w", addr, err)
	}
	return cl, nil
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	return wrapAPIError(fn(cl), cl.BaseURL())
}

func wrapAPIError(err error, addr string) error {
	if err == nil {
		return nil
	}
	if client.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to server at %s: start it with `loadboard serve`: %w", addr, err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
