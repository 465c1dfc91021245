package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notemirror/internal/repository"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	Local        LocalConfig        `yaml:"local"`
	Remote       RemoteConfig       `yaml:"remote"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Calendar     CalendarConfig     `yaml:"calendar"`
	Auth         AuthConfig         `yaml:"auth"`
	Companion    CompanionConfig    `yaml:"companion"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Local, &c.Remote, &c.Connectivity, &c.Sync, &c.Calendar, &c.Auth, &c.Companion,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// UserID is stamped as created_by_user_id on notes created through this instance.
	UserID string `yaml:"user_id"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LocalConfig holds the on-device SQLite store location.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the local store configuration.
func (c *LocalConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	return nil
}

// RemoteConfig holds the shared store: a PostgreSQL DSN for reads and the
// companion service base URL for writes.
type RemoteConfig struct {
	DSN        string        `yaml:"dsn"`
	APIBaseURL string        `yaml:"api_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.APIBaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	return nil
}

// ConnectivityConfig tunes the reachability monitor.
type ConnectivityConfig struct {
	ProbeAddress string        `yaml:"probe_address"`
	Interval     time.Duration `yaml:"interval"`
	Settle       time.Duration `yaml:"settle"`
	WatchPaths   []string      `yaml:"watch_paths"`
}

// Validate validates the connectivity configuration.
func (c *ConnectivityConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ProbeAddress, validation.Required, is.DialString),
		validation.Field(&c.Interval, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("connectivity: %w", err)
	}
	return nil
}

// SyncConfig selects what happens to offline edits on reconnect.
type SyncConfig struct {
	Reconcile string `yaml:"reconcile"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.Reconcile == "" {
		c.Reconcile = string(repository.PolicyReplace)
	}
	if _, err := repository.ParsePolicy(c.Reconcile); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// Policy returns the parsed reconcile policy. Call after Validate.
func (c *SyncConfig) Policy() repository.Policy {
	p, _ := repository.ParsePolicy(c.Reconcile)
	return p
}

// CalendarConfig controls publishing to Google Calendar.
type CalendarConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CredentialsFile string        `yaml:"credentials_file"`
	CalendarID      string        `yaml:"calendar_id"`
	Interval        time.Duration `yaml:"interval"`
	TimeZone        string        `yaml:"time_zone"`
}

// Validate validates the calendar configuration. Fields are only
// required when publishing is enabled.
func (c *CalendarConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.CredentialsFile, validation.Required),
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.TimeZone, validation.By(validTimeZone)),
	); err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	return nil
}

func validTimeZone(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown time zone %q", s)
	}
	return nil
}

// Location returns the configured time zone, or time.Local.
func (c *CalendarConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CompanionConfig configures the companion write service.
type CompanionConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

// Validate validates the companion configuration.
func (c *CompanionConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("companion: %w", err)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			UserID: "local-user",
		},
		Local: LocalConfig{
			Path: "./notemirror.db",
		},
		Remote: RemoteConfig{
			DSN:        "postgres://notemirror@localhost:5432/notemirror?sslmode=disable",
			APIBaseURL: "http://localhost:8081",
			Timeout:    10 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			ProbeAddress: "localhost:5432",
			Interval:     5 * time.Second,
			Settle:       3 * time.Second,
		},
		Sync: SyncConfig{
			Reconcile: string(repository.PolicyReplace),
		},
		Calendar: CalendarConfig{
			CalendarID: "primary",
			Interval:   15 * time.Minute,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Companion: CompanionConfig{
			HTTP: HTTPConfig{
				Port: 8081,
			},
		},
	}
}
