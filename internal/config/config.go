package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tandem/internal/domain"
)

// Config models tandem.yml.
type Config struct {
	Locale   string `yaml:"locale"`
	Timezone string `yaml:"timezone"`
	People   struct {
		Mann PersonConfig `yaml:"mann"`
		Frau PersonConfig `yaml:"frau"`
	} `yaml:"people"`
	Tags  []string `yaml:"tags"`
	Store struct {
		Timeout Duration `yaml:"timeout"`
	} `yaml:"store"`
	Push   PushConfig `yaml:"push"`
	Auth   AuthConfig `yaml:"auth"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`

	// location caches Timezone as resolved by Validate.
	location *time.Location
}

type PersonConfig struct {
	Label string `yaml:"label"`
}

type PushConfig struct {
	Subject    string   `yaml:"subject"`
	PublicKey  string   `yaml:"public_key"`
	PrivateKey string   `yaml:"private_key"`
	Timeout    Duration `yaml:"timeout"`
	TTL        int      `yaml:"ttl"`
}

// Enabled reports whether VAPID credentials are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Duration reads Go duration strings such as "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Locale {
	case "de", "en":
	default:
		return fmt.Errorf("config.locale must be 'de' or 'en'")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config.timezone: %w", err)
	}
	c.location = loc
	if c.People.Mann.Label == "" || c.People.Frau.Label == "" {
		return fmt.Errorf("config.people labels are required")
	}
	seen := make(map[string]struct{}, len(c.Tags))
	for _, name := range c.Tags {
		if name == "" {
			return fmt.Errorf("config.tags contains empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config.tags contains duplicate %s", name)
		}
		seen[name] = struct{}{}
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config.store.timeout must be positive")
	}
	if c.Push.Timeout <= 0 {
		return fmt.Errorf("config.push.timeout must be positive")
	}
	if (c.Push.PublicKey == "") != (c.Push.PrivateKey == "") {
		return fmt.Errorf("config.push requires both public_key and private_key")
	}
	return nil
}

// Location returns the zone used for calendar-date comparisons. It is
// resolved once by Validate; a Timezone changed afterwards is looked up again.
func (c *Config) Location() *time.Location {
	if c.location != nil && c.location.String() == c.Timezone {
		return c.location
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Label returns the display name for a person.
func (c *Config) Label(p domain.Person) string {
	if p == domain.PersonFrau {
		return c.People.Frau.Label
	}
	return c.People.Mann.Label
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tandem.yml")
}

// Load reads the workspace config, falling back to defaults when absent.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	cfg.location, _ = time.LoadLocation(cfg.Timezone)
	return &cfg
}

// FromYAML overlays raw YAML on the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `locale: de
timezone: Local

people:
  mann:
    label: Mann
  frau:
    label: Frau

tags:
  - Haushalt
  - Wohnung
  - Fahrzeuge
  - Finanzen
  - Termine
  - Gesundheit & Familie
  - IT & Orga

store:
  timeout: 5s

push:
  subject: mailto:admin@example.com
  timeout: 10s
  ttl: 3600

server:
  addr: 127.0.0.1:8080
  base_path: /api

log:
  level: info
  encoding: json
`
