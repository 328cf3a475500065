// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Portal   PortalConfig   `mapstructure:"portal" yaml:"portal"`
	Booking  BookingConfig  `mapstructure:"booking" yaml:"booking"`
	Sessions SessionsConfig `mapstructure:"sessions" yaml:"sessions"`
	Intent   IntentConfig   `mapstructure:"intent" yaml:"intent"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTTTL          time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// PortalConfig identifies the clinic portal the agent drives.
type PortalConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	DocumentType string `mapstructure:"document_type" yaml:"document_type"`
}

// BookingConfig names every wait the stage machine performs. Settle delays stand in
// for framework-internal state that is not observable from outside the page; they are
// tunables, not correctness guarantees.
type BookingConfig struct {
	// Page load and stage preconditions.
	PageLoadSettle time.Duration `mapstructure:"page_load_settle" yaml:"page_load_settle"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// IdentifyPatient.
	DropdownSettle     time.Duration `mapstructure:"dropdown_settle" yaml:"dropdown_settle"`
	OptionSettle       time.Duration `mapstructure:"option_settle" yaml:"option_settle"`
	TypeSettle         time.Duration `mapstructure:"type_settle" yaml:"type_settle"`
	ContinueAttempts   int           `mapstructure:"continue_attempts" yaml:"continue_attempts"`
	ContinueInterval   time.Duration `mapstructure:"continue_interval" yaml:"continue_interval"`
	PostContinueSettle time.Duration `mapstructure:"post_continue_settle" yaml:"post_continue_settle"`

	// SelectService.
	ServiceCardTimeout time.Duration `mapstructure:"service_card_timeout" yaml:"service_card_timeout"`
	ServiceSettle      time.Duration `mapstructure:"service_settle" yaml:"service_settle"`
	PostServiceSettle  time.Duration `mapstructure:"post_service_settle" yaml:"post_service_settle"`

	// SearchSpecialtyLocation.
	SearchFormSettle time.Duration `mapstructure:"search_form_settle" yaml:"search_form_settle"`
	SuggestionSettle time.Duration `mapstructure:"suggestion_settle" yaml:"suggestion_settle"`
	PostSearchSettle time.Duration `mapstructure:"post_search_settle" yaml:"post_search_settle"`

	// WaitAvailability.
	AvailabilityTimeout time.Duration `mapstructure:"availability_timeout" yaml:"availability_timeout"`
	GridSettle          time.Duration `mapstructure:"grid_settle" yaml:"grid_settle"`

	// SelectDate / SelectTime / AcceptTerms / FillContact / SubmitReservation.
	SelectionSettle time.Duration `mapstructure:"selection_settle" yaml:"selection_settle"`
	TermsWait       time.Duration `mapstructure:"terms_wait" yaml:"terms_wait"`
	ContactSettle   time.Duration `mapstructure:"contact_settle" yaml:"contact_settle"`
	SubmitSettle    time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`

	// Availability extraction caps.
	MaxDates int `mapstructure:"max_dates" yaml:"max_dates"`
	MaxTimes int `mapstructure:"max_times" yaml:"max_times"`
}

// SessionsConfig bounds the conversational session store.
type SessionsConfig struct {
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// RatePerMinute bounds how many portal replays a single caller may trigger.
	RatePerMinute int `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// IntentConfig configures the LLM used for chat intent extraction.
type IntentConfig struct {
	Model  string `mapstructure:"model" yaml:"model"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// SetDefaults initializes default values for the configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "agendabot")
	v.SetDefault("logger.log_file", "agendabot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_ttl", "24h")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m") // booking replays are slow
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Portal --
	v.SetDefault("portal.url", "https://agenda.redsalud.cl/patientPortal/identifyPatient")
	v.SetDefault("portal.document_type", "Carnet de Identidad")

	// -- Booking waits --
	v.SetDefault("booking.page_load_settle", "2s")
	v.SetDefault("booking.stage_timeout", "30s")
	v.SetDefault("booking.poll_interval", "500ms")
	v.SetDefault("booking.dropdown_settle", "800ms")
	v.SetDefault("booking.option_settle", "1s")
	v.SetDefault("booking.type_settle", "150ms")
	v.SetDefault("booking.continue_attempts", 20)
	v.SetDefault("booking.continue_interval", "500ms")
	v.SetDefault("booking.post_continue_settle", "3s")
	v.SetDefault("booking.service_card_timeout", "10s")
	v.SetDefault("booking.service_settle", "1500ms")
	v.SetDefault("booking.post_service_settle", "3s")
	v.SetDefault("booking.search_form_settle", "1500ms")
	v.SetDefault("booking.suggestion_settle", "800ms")
	v.SetDefault("booking.post_search_settle", "500ms")
	v.SetDefault("booking.availability_timeout", "45s")
	v.SetDefault("booking.grid_settle", "2s")
	v.SetDefault("booking.selection_settle", "2s")
	v.SetDefault("booking.terms_wait", "2s")
	v.SetDefault("booking.contact_settle", "1s")
	v.SetDefault("booking.submit_settle", "3s")
	v.SetDefault("booking.max_dates", 5)
	v.SetDefault("booking.max_times", 10)

	// -- Sessions --
	v.SetDefault("sessions.ttl", "30m")
	v.SetDefault("sessions.sweep_interval", "5m")
	v.SetDefault("sessions.rate_per_minute", 6)

	// -- Intent --
	v.SetDefault("intent.model", "gemini-2.5-flash")
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("server.jwt_secret", "AGENDABOT_JWT_SECRET")
	v.BindEnv("database.url", "AGENDABOT_DATABASE_URL")
	v.BindEnv("intent.api_key", "AGENDABOT_GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigDir returns the directory searched for config.yaml besides the CWD.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agendabot"), nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is a required configuration field")
	}
	if c.Booking.ContinueAttempts <= 0 {
		return fmt.Errorf("booking.continue_attempts must be a positive integer")
	}
	if c.Booking.MaxDates <= 0 || c.Booking.MaxTimes <= 0 {
		return fmt.Errorf("booking.max_dates and booking.max_times must be positive")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be a positive duration")
	}
	return nil
}
