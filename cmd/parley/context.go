package main

import (
	"errors"
	"strings"

	"parley/internal/config"
)

// commandContext carries lazily-loaded configuration and connection details
// shared by every subcommand.
type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	cfg     *config.Config
	cfgPath string
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.cfgPath = resolved
	return cfg, nil
}

// client builds an API client for the daemon from flags and config.
func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	server := ""
	if c.serverFlag != nil {
		server = strings.TrimSpace(*c.serverFlag)
	}
	if server == "" {
		server = strings.TrimSpace(cfg.Paths.APIBind)
	}
	if server == "" {
		return nil, errors.New("no daemon address: set --server or paths.api_bind")
	}

	token := ""
	if c.tokenFlag != nil {
		token = strings.TrimSpace(*c.tokenFlag)
	}
	if token == "" && len(cfg.Auth.Clients) > 0 {
		token = cfg.Auth.Clients[0].Token
	}
	if token == "" {
		return nil, errors.New("no API token: set --token or configure auth.clients")
	}

	return newAPIClient(server, token), nil
}
