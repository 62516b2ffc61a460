package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/trailguard/internal/channel"
	pkgconfig "github.com/starford/trailguard/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Session = SessionConfig{UserID: "u1", DisplayName: "Asha"}
	return cfg
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_DefaultsNeedSession(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err == nil {
		t.Fatal("defaults without a session user should fail")
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaults with session should pass: %v", err)
	}
}

func TestJourneyConfig_RejectsBadDurations(t *testing.T) {
	cases := map[string]func(*JourneyConfig){
		"zero interval":         func(c *JourneyConfig) { c.AlertInterval = 0 },
		"tiny poll":             func(c *JourneyConfig) { c.PollInterval = time.Millisecond },
		"cooldown below poll":   func(c *JourneyConfig) { c.StopCooldown = 10 * time.Second },
		"negative threshold":    func(c *JourneyConfig) { c.SpeedThresholdKph = -5 },
		"battery over 100":      func(c *JourneyConfig) { c.LowBatteryPercent = 120 },
		"low battery every 10s": func(c *JourneyConfig) { c.LowBatteryEvery = 10 * time.Second },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg.Journey)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestHTTPConfig_RejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 70000 should fail")
	}
}

func TestHTTPConfig_RejectsNegativeHeartbeat(t *testing.T) {
	cfg := validConfig()
	cfg.App.HTTP.SSEHeartbeat = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative sse_heartbeat should fail")
	}
	cfg.App.HTTP.SSEHeartbeat = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero sse_heartbeat disables keep-alives: %v", err)
	}
}

func TestPhoneConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Phone.DefaultCountryCode = "+91"
	if err := cfg.Validate(); err == nil {
		t.Error("country code with plus should fail")
	}
	cfg.Phone.DefaultCountryCode = "1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("country code 1 should pass: %v", err)
	}
}

func TestChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = nil
	if err := cfg.Validate(); err == nil {
		t.Error("no channels should fail")
	}

	cfg.Channels = []channel.Config{{Name: "sms", Type: channel.TypeSMS, URL: "http://gw"}}
	if err := cfg.Validate(); err == nil {
		t.Error("sms without from should fail")
	}

	cfg.Channels = []channel.Config{
		{Name: "a", Type: channel.TypeLog},
		{Name: "a", Type: channel.TypeWebhook, URL: "http://hook"},
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate names: err = %v", err)
	}

	cfg.Channels = []channel.Config{{Name: "pager", Type: "pigeon"}}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestVoiceConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Voice.Backend = "telepathy"
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled voice is not validated: %v", err)
	}

	cfg.Voice.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should fail")
	}

	cfg.Voice.Backend = VoiceBackendWebsocket
	if err := cfg.Validate(); err == nil {
		t.Error("websocket without url should fail")
	}

	cfg.Voice.URL = "wss://asr.example/listen"
	if err := cfg.Validate(); err != nil {
		t.Errorf("websocket with url should pass: %v", err)
	}
}

func TestApplicationConfig_TimeZone(t *testing.T) {
	cfg := validConfig()
	cfg.App.TimeZone = "Asia/Kolkata"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid zone: %v", err)
	}
	if got := cfg.App.Location().String(); got != "Asia/Kolkata" {
		t.Errorf("location = %q", got)
	}

	cfg.App.TimeZone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown zone should fail")
	}
}

func TestSafetyConfig_Mapping(t *testing.T) {
	cfg := validConfig()
	sc := cfg.SafetyConfig()
	if sc.Session.UserID != "u1" || sc.Session.DisplayName != "Asha" {
		t.Errorf("session = %+v", sc.Session)
	}
	if sc.Scheduler.Interval != 2*time.Minute {
		t.Errorf("interval = %v", sc.Scheduler.Interval)
	}
	if sc.Detector.StopCooldown != 5*time.Minute || sc.Detector.PollInterval != 30*time.Second {
		t.Errorf("detector = %+v", sc.Detector)
	}
	if sc.Alert.PositionFreshness != 2*time.Minute {
		t.Errorf("freshness = %v", sc.Alert.PositionFreshness)
	}
	if !sc.AutoDetect {
		t.Error("auto detect should default on")
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("TG_GATEWAY_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: DEBUG
  http:
    port: 9090
session:
  user_id: u42
  display_name: Ravi
journey:
  alert_interval: 5m
channels:
  - name: sms
    type: sms
    url: https://gw.example/messages
    from: "+15550001111"
    token: ${TG_GATEWAY_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Journey.AlertInterval != 5*time.Minute {
		t.Errorf("alert interval = %v", cfg.Journey.AlertInterval)
	}
	if cfg.Journey.PollInterval != 30*time.Second {
		t.Errorf("poll interval default lost: %v", cfg.Journey.PollInterval)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].Token != "s3cret" {
		t.Errorf("channels = %+v", cfg.Channels)
	}
}
