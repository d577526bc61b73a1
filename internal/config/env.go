package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override tandem.yml. The VAPID names match
// what web-push tooling conventionally exports.
const (
	EnvVAPIDPublicKey  = "VAPID_PUBLIC_KEY"
	EnvVAPIDPrivateKey = "VAPID_PRIVATE_KEY"
	EnvVAPIDSubject    = "VAPID_SUBJECT"
	EnvJWTSecret       = "TANDEM_JWT_SECRET"
	EnvLogLevel        = "TANDEM_LOG_LEVEL"
	EnvStoreTimeout    = "TANDEM_STORE_TIMEOUT"
)

// LoadDotEnv loads <workspace>/.env into the process environment without
// overriding variables that are already set. A missing file is fine.
func LoadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays secrets and tunables from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvVAPIDPublicKey); ok && strings.TrimSpace(v) != "" {
		c.Push.PublicKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvVAPIDPrivateKey); ok && strings.TrimSpace(v) != "" {
		c.Push.PrivateKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvVAPIDSubject); ok && strings.TrimSpace(v) != "" {
		c.Push.Subject = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvJWTSecret); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvStoreTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Store.Timeout = Duration(d)
	}
	return c.Validate()
}
