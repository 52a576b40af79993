package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/nextremer/minarai-client-go/pkg/minarai"
)

// Config is the on-disk YAML layout. Command-line flags and environment
// variables override it.
type Config struct {
	Identity minarai.Identity `yaml:"identity"`
	Options  minarai.Options  `yaml:"options"`
	EventLog string           `yaml:"event_log"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Bool(name string) bool
}

var _ flagSource = (*cli.Context)(nil)

func (c *Config) applyFlags(ctx flagSource) {
	strFlags := []struct {
		name string
		dst  *string
	}{
		{"application-id", &c.Identity.ApplicationID},
		{"application-secret", &c.Identity.ApplicationSecret},
		{"client-id", &c.Identity.ClientID},
		{"user-id", &c.Identity.UserID},
		{"device-id", &c.Identity.DeviceID},
		{"url", &c.Options.ChannelRootURL},
		{"api-version", &c.Options.APIVersion},
		{"lang", &c.Options.Lang},
	}
	for _, f := range strFlags {
		if ctx.IsSet(f.name) || *f.dst == "" {
			*f.dst = ctx.String(f.name)
		}
	}
	if ctx.IsSet("image-via-header") {
		c.Options.ImageFetchViaHeader = ctx.Bool("image-via-header")
	}
	if ctx.IsSet("tls-skip-verify") {
		c.Options.Transport.TLSSkipVerify = ctx.Bool("tls-skip-verify")
	}
	if c.Identity.DeviceID == "" {
		c.Identity.DeviceID = uuid.NewString()
	}
}

func (c *Config) newClient() (*minarai.Client, error) {
	opts := c.Options
	return minarai.New(c.Identity, &opts)
}
