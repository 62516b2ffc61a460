package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/trailguard/internal/alert"
	"github.com/starford/trailguard/internal/channel"
	"github.com/starford/trailguard/internal/journey"
	"github.com/starford/trailguard/internal/safety"
	"github.com/starford/trailguard/internal/voice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Voice backends.
const (
	VoiceBackendRelay     = "relay"
	VoiceBackendWebsocket = "websocket"
)

var countryCodeRe = regexp.MustCompile(`^[0-9]{1,3}$`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Session  SessionConfig     `yaml:"session"`
	Phone    PhoneConfig       `yaml:"phone"`
	Journey  JourneyConfig     `yaml:"journey"`
	Contacts ContactsConfig    `yaml:"contacts"`
	Remote   RemoteConfig      `yaml:"remote"`
	Alert    AlertConfig       `yaml:"alert"`
	Channels []channel.Config  `yaml:"channels"`
	Voice    VoiceConfig       `yaml:"voice"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.Session, &c.Phone,
		&c.Journey, &c.Contacts, &c.Remote, &c.Alert, &c.Voice,
	}
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return validateChannels(c.Channels)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	TimeZone string     `yaml:"time_zone"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TimeZone, validation.By(func(any) error {
			_, err := time.LoadLocation(c.TimeZone)
			return err
		})),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Location returns the time zone used in message timestamps.
func (c *ApplicationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// SSEHeartbeat is the keep-alive interval on /api/events; zero disables it.
	SSEHeartbeat time.Duration `yaml:"sse_heartbeat"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SSEHeartbeat, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// SessionConfig identifies the monitored user.
type SessionConfig struct {
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.DisplayName, validation.Required, validation.Length(1, 64)),
	)
}

// PhoneConfig holds the phone number normalization rules.
type PhoneConfig struct {
	DefaultCountryCode string `yaml:"default_country_code"`
	LocalLength        int    `yaml:"local_length"`
}

// Validate validates the phone configuration.
func (c *PhoneConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultCountryCode, validation.Required, validation.Match(countryCodeRe)),
		validation.Field(&c.LocalLength, validation.Required, validation.Min(4), validation.Max(14)),
	)
}

// JourneyConfig holds the journey, detection and periodic alert knobs.
type JourneyConfig struct {
	AlertInterval     time.Duration `yaml:"alert_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SpeedThresholdKph float64       `yaml:"speed_threshold_kph"`
	StopCooldown      time.Duration `yaml:"stop_cooldown"`
	FreshFixTimeout   time.Duration `yaml:"fresh_fix_timeout"`
	PositionFreshness time.Duration `yaml:"position_freshness"`
	SubscribeInterval time.Duration `yaml:"subscribe_interval"`
	AutoDetect        bool          `yaml:"auto_detect"`
	LowBatteryPercent int           `yaml:"low_battery_percent"`
	LowBatteryEvery   time.Duration `yaml:"low_battery_every"`
}

// Validate validates the journey configuration.
func (c *JourneyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AlertInterval, validation.Required, validation.Min(10*time.Second)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SpeedThresholdKph, validation.Required, validation.Min(0.1), validation.Max(300.0)),
		validation.Field(&c.StopCooldown, validation.Required, validation.Min(c.PollInterval)),
		validation.Field(&c.FreshFixTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PositionFreshness, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SubscribeInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LowBatteryPercent, validation.Min(0), validation.Max(100)),
		validation.Field(&c.LowBatteryEvery, validation.Required, validation.Min(time.Minute)),
	)
}

// ContactsConfig holds the contact import and sync settings.
type ContactsConfig struct {
	ImportDir   string        `yaml:"import_dir"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// Validate validates the contacts configuration.
func (c *ContactsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SyncTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// RemoteConfig points at the remote document store. An empty BaseURL means
// local-only mode.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// Enabled reports whether a remote store is configured.
func (c *RemoteConfig) Enabled() bool {
	return c.BaseURL != ""
}

// AlertConfig holds the delivery timeouts.
type AlertConfig struct {
	SendTimeout    time.Duration `yaml:"send_timeout"`
	OutcomeTimeout time.Duration `yaml:"outcome_timeout"`
}

// Validate validates the alert configuration.
func (c *AlertConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SendTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.OutcomeTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// VoiceConfig holds the voice trigger settings.
type VoiceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Backend        string        `yaml:"backend"`
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Keywords       []string      `yaml:"keywords"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// Validate validates the voice configuration.
func (c *VoiceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(VoiceBackendRelay, VoiceBackendWebsocket)),
		validation.Field(&c.URL, validation.When(c.Backend == VoiceBackendWebsocket, validation.Required)),
		validation.Field(&c.Keywords, validation.Each(validation.Required)),
		validation.Field(&c.RestartDelay, validation.Required),
		validation.Field(&c.ConfirmTimeout, validation.Required, validation.Min(time.Second)),
	)
}

func validateChannels(chs []channel.Config) error {
	if len(chs) == 0 {
		return fmt.Errorf("channels: at least one alert channel is required")
	}
	seen := make(map[string]bool, len(chs))
	for i := range chs {
		ch := &chs[i]
		if err := validation.ValidateStruct(ch,
			validation.Field(&ch.Name, validation.Required),
			validation.Field(&ch.Type, validation.Required, validation.In(channel.TypeSMS, channel.TypeWebhook, channel.TypeLog)),
			validation.Field(&ch.URL, validation.When(ch.Type != channel.TypeLog, validation.Required)),
			validation.Field(&ch.From, validation.When(ch.Type == channel.TypeSMS, validation.Required)),
		); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate name %q", i, ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}

// SafetyConfig maps the file configuration onto the orchestrator's.
func (c *Config) SafetyConfig() safety.Config {
	j := c.Journey
	return safety.Config{
		Session:     safety.Session{UserID: c.Session.UserID, DisplayName: c.Session.DisplayName},
		CountryCode: c.Phone.DefaultCountryCode,
		LocalLength: c.Phone.LocalLength,
		Location:    c.App.Location(),
		SyncTimeout: c.Contacts.SyncTimeout,
		Journey: journey.Config{
			FreshFixTimeout:   j.FreshFixTimeout,
			SubscribeInterval: j.SubscribeInterval,
		},
		Detector: journey.DetectorConfig{
			PollInterval:      j.PollInterval,
			SpeedThresholdKph: j.SpeedThresholdKph,
			StopCooldown:      j.StopCooldown,
		},
		Scheduler: alert.SchedulerConfig{
			Interval:          j.AlertInterval,
			FreshFixTimeout:   j.FreshFixTimeout,
			LowBatteryPercent: j.LowBatteryPercent,
			LowBatteryEvery:   j.LowBatteryEvery,
		},
		Alert: alert.Config{
			SendTimeout:       c.Alert.SendTimeout,
			OutcomeTimeout:    c.Alert.OutcomeTimeout,
			FreshFixTimeout:   j.FreshFixTimeout,
			PositionFreshness: j.PositionFreshness,
		},
		Voice: voice.Config{
			Keywords:       c.Voice.Keywords,
			RestartDelay:   c.Voice.RestartDelay,
			ConfirmTimeout: c.Voice.ConfirmTimeout,
		},
		AutoDetect: j.AutoDetect,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			TimeZone: "Local",
			HTTP: HTTPConfig{
				Port:         8080,
				SSEHeartbeat: 15 * time.Second,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./trailguard.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Phone: PhoneConfig{
			DefaultCountryCode: "91",
			LocalLength:        10,
		},
		Journey: JourneyConfig{
			AlertInterval:     2 * time.Minute,
			PollInterval:      30 * time.Second,
			SpeedThresholdKph: 10,
			StopCooldown:      5 * time.Minute,
			FreshFixTimeout:   15 * time.Second,
			PositionFreshness: 2 * time.Minute,
			SubscribeInterval: 10 * time.Second,
			AutoDetect:        true,
			LowBatteryPercent: 20,
			LowBatteryEvery:   30 * time.Minute,
		},
		Contacts: ContactsConfig{
			ImportDir:   "./contacts",
			SyncTimeout: 10 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Alert: AlertConfig{
			SendTimeout:    20 * time.Second,
			OutcomeTimeout: 10 * time.Minute,
		},
		Channels: []channel.Config{
			{Name: channel.TypeLog, Type: channel.TypeLog},
		},
		Voice: VoiceConfig{
			Backend:        VoiceBackendRelay,
			RestartDelay:   time.Second,
			ConfirmTimeout: 30 * time.Second,
		},
	}
}
