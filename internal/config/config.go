// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Environment() EnvironmentConfig
	Browser() BrowserConfig
	Screenshots() ScreenshotConfig
	Scenario() ScenarioConfig
	Credentials() CredentialsConfig

	// Environment Setters
	SetBaseURL(string)

	// Browser Setters
	SetBrowserHeadless(bool)

	// Screenshot Setters
	SetScreenshotDir(string)

	// Scenario Setters
	SetReportPath(string)
	SetAITimeout(time.Duration)
	SetTokenReplay(string)
}

// Database creator strategies.
const (
	CreatorCommand  = "command"
	CreatorPostgres = "postgres"
)

// Token replay policies applied after the consent form is submitted.
const (
	TokenReplayReport  = "report"
	TokenReplayEnforce = "enforce"
	TokenReplaySkip    = "skip"
)

// DatabasePlaceholder is substituted with the provisioned database identifier
// inside command arguments and URL templates.
const DatabasePlaceholder = "{db}"

// AppointmentDateLayout is the layout of scenario.appointment.date.
const AppointmentDateLayout = "2006-01-02"

// Config holds the entire harness configuration. Sections are exported so
// viper can decode into them; callers go through the Interface getters.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	EnvironmentCfg EnvironmentConfig `mapstructure:"environment" yaml:"environment"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	ScreenshotsCfg ScreenshotConfig  `mapstructure:"screenshots" yaml:"screenshots"`
	ScenarioCfg    ScenarioConfig    `mapstructure:"scenario" yaml:"scenario"`
	CredentialsCfg CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig       { return c.DatabaseCfg }
func (c *Config) Environment() EnvironmentConfig { return c.EnvironmentCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Screenshots() ScreenshotConfig  { return c.ScreenshotsCfg }
func (c *Config) Scenario() ScenarioConfig       { return c.ScenarioCfg }
func (c *Config) Credentials() CredentialsConfig { return c.CredentialsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBaseURL(u string)          { c.EnvironmentCfg.BaseURL = strings.TrimRight(u, "/") }
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetScreenshotDir(dir string)  { c.ScreenshotsCfg.Dir = dir }
func (c *Config) SetReportPath(p string)       { c.ScenarioCfg.ReportPath = p }
func (c *Config) SetAITimeout(d time.Duration) { c.ScenarioCfg.AITimeout = d }
func (c *Config) SetTokenReplay(p string)      { c.ScenarioCfg.TokenReplay = p }

// LoggerConfig holds all the configuration for the logger.
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

// DatabaseConfig holds the Postgres connection details used when the harness
// talks to the database server directly instead of shelling out.
type DatabaseConfig struct {
	// AdminURL points at a maintenance database (usually "postgres") with
	// permission to CREATE DATABASE.
	AdminURL string `mapstructure:"admin_url" yaml:"admin_url"`
	// URLTemplate connects to the provisioned database; {db} is replaced.
	URLTemplate    string `mapstructure:"url_template" yaml:"url_template"`
	VerifyFixtures bool   `mapstructure:"verify_fixtures" yaml:"verify_fixtures"`
}

// EnvironmentConfig describes how the disposable environment is created,
// seeded and served.
type EnvironmentConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Workdir        string        `mapstructure:"workdir" yaml:"workdir"`
	Creator        string        `mapstructure:"creator" yaml:"creator"`
	DatabasePrefix string        `mapstructure:"database_prefix" yaml:"database_prefix"`
	CreateCommand  []string      `mapstructure:"create_command" yaml:"create_command"`
	SeedCommand    []string      `mapstructure:"seed_command" yaml:"seed_command"`
	ServerCommand  []string      `mapstructure:"server_command" yaml:"server_command"`
	ServerEnv      []string      `mapstructure:"server_env" yaml:"server_env"`
	DatabaseEnvVar string        `mapstructure:"database_env_var" yaml:"database_env_var"`
	ServerLog      string        `mapstructure:"server_log" yaml:"server_log"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	WindowWidth    int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int           `mapstructure:"window_height" yaml:"window_height"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StartTimeout   time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
}

// ScreenshotConfig controls where the audit trail is written.
type ScreenshotConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ScenarioConfig tunes the acceptance journey.
type ScenarioConfig struct {
	AITimeout     time.Duration     `mapstructure:"ai_timeout" yaml:"ai_timeout"`
	AIMinLength   int               `mapstructure:"ai_min_length" yaml:"ai_min_length"`
	AIPlaceholder string            `mapstructure:"ai_placeholder" yaml:"ai_placeholder"`
	AIMarkers     []string          `mapstructure:"ai_markers" yaml:"ai_markers"`
	TokenReplay   string            `mapstructure:"token_replay" yaml:"token_replay"`
	ConsentStatus string            `mapstructure:"consent_status" yaml:"consent_status"`
	NewUserRole   string            `mapstructure:"new_user_role" yaml:"new_user_role"`
	ReportPath    string            `mapstructure:"report_path" yaml:"report_path"`
	Appointment   AppointmentConfig `mapstructure:"appointment" yaml:"appointment"`
	Consent       ConsentConfig     `mapstructure:"consent" yaml:"consent"`
}

// AppointmentConfig is the appointment booked for the test patient.
type AppointmentConfig struct {
	Date      string `mapstructure:"date" yaml:"date"`
	Time      string `mapstructure:"time" yaml:"time"`
	Price     string `mapstructure:"price" yaml:"price"`
	Therapist string `mapstructure:"therapist" yaml:"therapist"`
	Notes     string `mapstructure:"notes" yaml:"notes"`
}

// ConsentConfig is what the patient actor types into the consent form.
type ConsentConfig struct {
	NationalID string `mapstructure:"national_id" yaml:"national_id"`
	HowFound   string `mapstructure:"how_found" yaml:"how_found"`
}

// CredentialsConfig holds the seeded accounts the journey logs in with.
type CredentialsConfig struct {
	Admin           AccountConfig `mapstructure:"admin" yaml:"admin"`
	Therapist       AccountConfig `mapstructure:"therapist" yaml:"therapist"`
	Secretary       AccountConfig `mapstructure:"secretary" yaml:"secretary"`
	NewUserPassword string        `mapstructure:"new_user_password" yaml:"new_user_password"`
}

// AccountConfig is one email/password pair.
type AccountConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"password"`
}

// NewDefaultConfig creates a new configuration populated with all the default
// values. Useful for testing and as a base for further configuration.
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

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mediflow-e2e")
	v.SetDefault("logger.log_file", "mediflow-e2e.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.admin_url", "")
	v.SetDefault("database.url_template", "")
	v.SetDefault("database.verify_fixtures", false)

	// -- Environment --
	v.SetDefault("environment.base_url", "http://127.0.0.1:8080")
	v.SetDefault("environment.workdir", ".")
	v.SetDefault("environment.creator", CreatorCommand)
	v.SetDefault("environment.database_prefix", "mediflow_test")
	v.SetDefault("environment.create_command", []string{"go", "run", "data_manager.go", "-create-test-db"})
	v.SetDefault("environment.seed_command", []string{"go", "run", "data_manager.go", "-init", "-create-users", "-dbname=" + DatabasePlaceholder})
	v.SetDefault("environment.server_command", []string{"go", "run", "main.go"})
	v.SetDefault("environment.server_env", []string{})
	v.SetDefault("environment.database_env_var", "DB_NAME")
	v.SetDefault("environment.server_log", "server.log")
	v.SetDefault("environment.startup_timeout", "60s")
	v.SetDefault("environment.poll_interval", "250ms")
	v.SetDefault("environment.shutdown_grace", "5s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.default_timeout", "20s")
	v.SetDefault("browser.poll_interval", "200ms")
	v.SetDefault("browser.start_timeout", "30s")

	// -- Screenshots --
	v.SetDefault("screenshots.dir", "photos")

	// -- Scenario --
	v.SetDefault("scenario.ai_timeout", "120s")
	v.SetDefault("scenario.ai_min_length", 20)
	v.SetDefault("scenario.ai_placeholder", "aguarde")
	v.SetDefault("scenario.ai_markers", []string{"Temas Recorrentes", "Evolução"})
	v.SetDefault("scenario.token_replay", TokenReplayReport)
	v.SetDefault("scenario.consent_status", "Fornecido")
	v.SetDefault("scenario.new_user_role", "secretaria")
	v.SetDefault("scenario.report_path", "mediflow-e2e-report.json")
	v.SetDefault("scenario.appointment.date", "2025-09-22")
	v.SetDefault("scenario.appointment.time", "13:00")
	v.SetDefault("scenario.appointment.price", "200.00")
	v.SetDefault("scenario.appointment.therapist", "Dr. Exemplo")
	v.SetDefault("scenario.appointment.notes", "Consulta de teste agendada pelo admin.")
	v.SetDefault("scenario.consent.national_id", "34657488082")
	v.SetDefault("scenario.consent.how_found", "Google")

	// -- Credentials --
	v.SetDefault("credentials.admin.email", "admin@mediflow.com")
	v.SetDefault("credentials.admin.password", "senha123")
	v.SetDefault("credentials.therapist.email", "terapeuta@mediflow.com")
	v.SetDefault("credentials.therapist.password", "senha123")
	v.SetDefault("credentials.secretary.email", "secretaria@mediflow.com")
	v.SetDefault("credentials.secretary.password", "senha123")
	v.SetDefault("credentials.new_user_password", "senha123")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// APP_URL is honoured for compatibility with existing CI jobs.
	_ = v.BindEnv("environment.base_url", "MEDIFLOW_E2E_ENVIRONMENT_BASE_URL", "APP_URL")
	// Bind environment variables for sensitive data
	_ = v.BindEnv("credentials.admin.password", "MEDIFLOW_E2E_ADMIN_PASSWORD")
	_ = v.BindEnv("database.admin_url", "MEDIFLOW_E2E_DATABASE_ADMIN_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	cfg.EnvironmentCfg.BaseURL = strings.TrimRight(cfg.EnvironmentCfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every filesystem path setting.
func (c *Config) expandPaths() error {
	paths := map[string]*string{
		"logger.log_file":        &c.LoggerCfg.LogFile,
		"environment.workdir":    &c.EnvironmentCfg.Workdir,
		"environment.server_log": &c.EnvironmentCfg.ServerLog,
		"screenshots.dir":        &c.ScreenshotsCfg.Dir,
		"scenario.report_path":   &c.ScenarioCfg.ReportPath,
		"browser.exec_path":      &c.BrowserCfg.ExecPath,
	}
	for key, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand %s %q: %w", key, *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EnvironmentCfg.Validate(); err != nil {
		return fmt.Errorf("environment configuration invalid: %w", err)
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.ScenarioCfg.Validate(); err != nil {
		return fmt.Errorf("scenario configuration invalid: %w", err)
	}
	if c.ScreenshotsCfg.Dir == "" {
		return fmt.Errorf("screenshots.dir is a required configuration field")
	}
	if c.CredentialsCfg.Admin.Email == "" || c.CredentialsCfg.Admin.Password == "" {
		return fmt.Errorf("credentials.admin.email and credentials.admin.password are required")
	}
	if c.EnvironmentCfg.Creator == CreatorPostgres && c.DatabaseCfg.AdminURL == "" {
		return fmt.Errorf("database.admin_url is required when environment.creator is %q", CreatorPostgres)
	}
	if c.DatabaseCfg.VerifyFixtures && !strings.Contains(c.DatabaseCfg.URLTemplate, DatabasePlaceholder) {
		return fmt.Errorf("database.url_template must contain %s when database.verify_fixtures is enabled", DatabasePlaceholder)
	}
	return nil
}

// Validate checks the environment settings.
func (e *EnvironmentConfig) Validate() error {
	u, err := url.Parse(e.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", e.BaseURL)
	}
	switch e.Creator {
	case CreatorCommand:
		if len(e.CreateCommand) == 0 {
			return fmt.Errorf("create_command is required for the %q creator", CreatorCommand)
		}
	case CreatorPostgres:
		if e.DatabasePrefix == "" {
			return fmt.Errorf("database_prefix is required for the %q creator", CreatorPostgres)
		}
	default:
		return fmt.Errorf("creator must be %q or %q, got %q", CreatorCommand, CreatorPostgres, e.Creator)
	}
	if len(e.SeedCommand) == 0 {
		return fmt.Errorf("seed_command is required")
	}
	if len(e.ServerCommand) == 0 {
		return fmt.Errorf("server_command is required")
	}
	if e.DatabaseEnvVar == "" {
		return fmt.Errorf("database_env_var is required")
	}
	if e.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be a positive duration")
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if e.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must not be negative")
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window_width and window_height must be positive integers")
	}
	if b.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	if b.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks the scenario settings.
func (s *ScenarioConfig) Validate() error {
	if s.AITimeout <= 0 {
		return fmt.Errorf("ai_timeout must be a positive duration")
	}
	if s.AIMinLength < 0 {
		return fmt.Errorf("ai_min_length must not be negative")
	}
	switch s.TokenReplay {
	case TokenReplayReport, TokenReplayEnforce, TokenReplaySkip:
	default:
		return fmt.Errorf("token_replay must be one of %q, %q or %q, got %q",
			TokenReplayReport, TokenReplayEnforce, TokenReplaySkip, s.TokenReplay)
	}
	if _, err := s.Appointment.When(); err != nil {
		return err
	}
	if s.Consent.NationalID == "" {
		return fmt.Errorf("consent.national_id is required")
	}
	return nil
}

// When parses the configured appointment date and time in the local zone.
func (a AppointmentConfig) When() (time.Time, error) {
	when, err := time.ParseInLocation(AppointmentDateLayout+" 15:04", a.Date+" "+a.Time, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("appointment date/time %q %q is invalid: %w", a.Date, a.Time, err)
	}
	return when, nil
}
