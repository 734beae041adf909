package util

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const Name = "elektrine"
const ConfigFileName = "config.yaml"

// defaultConfig is used when no config file is present on disk.
const defaultConfig = `conf:
  host: 0.0.0.0
  httpPort: 8080
  domain: localhost
  fetchTimeoutSec: 10
  actorCacheHours: 24
  closed: false
`

type AppConfig struct {
	Conf struct {
		Host            string   `yaml:"host" env:"ELEKTRINE_HOST"`
		HttpPort        int      `yaml:"httpPort" env:"ELEKTRINE_HTTPPORT"`
		Domain          string   `yaml:"domain" env:"ELEKTRINE_DOMAIN"`
		FetchTimeoutSec int      `yaml:"fetchTimeoutSec" env:"ELEKTRINE_FETCH_TIMEOUT"`
		ActorCacheHours int      `yaml:"actorCacheHours" env:"ELEKTRINE_ACTOR_CACHE_HOURS"`
		Closed          bool     `yaml:"closed" env:"ELEKTRINE_CLOSED"`
		Relays          []string `yaml:"relays" env:"ELEKTRINE_RELAYS"`
	} `yaml:"conf"`
}

// ReadConf loads the yaml config (local dir first, then user config dir,
// falling back to built-in defaults) and overlays environment variables.
func ReadConf() (*AppConfig, error) {
	c := &AppConfig{}

	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Infof("Config file not found at %s, using defaults", configPath)
		buf = []byte(defaultConfig)

		if configDir, dirErr := GetConfigDir(); dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, buf, 0644); writeErr != nil {
				log.Warnf("Could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if err := envconfig.Process(context.Background(), c); err != nil {
		return nil, fmt.Errorf("processing env overrides: %w", err)
	}

	return c, nil
}

// ActorURI returns the canonical URI of a local account.
func (c *AppConfig) ActorURI(username string) string {
	return fmt.Sprintf("https://%s/users/%s", c.Conf.Domain, username)
}

// RelayActorURI returns the URI of this node's instance (relay) actor.
func (c *AppConfig) RelayActorURI() string {
	return fmt.Sprintf("https://%s/actor", c.Conf.Domain)
}

// FetchTimeout returns the bounded timeout for outbound federation fetches.
func (c *AppConfig) FetchTimeout() time.Duration {
	if c.Conf.FetchTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Conf.FetchTimeoutSec) * time.Second
}

// ActorCacheTTL returns how long a cached remote actor stays fresh.
func (c *AppConfig) ActorCacheTTL() time.Duration {
	if c.Conf.ActorCacheHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Conf.ActorCacheHours) * time.Hour
}
