package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Users        []UserSeed         `mapstructure:"users"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds lifecycle engine configuration
type WorkflowConfig struct {
	BulkLimit int    `mapstructure:"bulk_limit"`
	Timezone  string `mapstructure:"timezone"`
	SLADays   int    `mapstructure:"sla_days"`
}

// Location resolves Timezone; calendar days (delegations, paid dates) are taken in it
func (w WorkflowConfig) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(w.Timezone)
}

// NotificationConfig selects the delivery driver
type NotificationConfig struct {
	Driver      string `mapstructure:"driver"`
	Parallelism int    `mapstructure:"parallelism"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	SLAPollInterval time.Duration `mapstructure:"sla_poll_interval"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// UserSeed is a user profile upserted at startup
type UserSeed struct {
	ID                   string   `mapstructure:"id"`
	Name                 string   `mapstructure:"name"`
	Email                string   `mapstructure:"email"`
	Role                 string   `mapstructure:"role"`
	DepartmentID         string   `mapstructure:"department_id"`
	ProgramIDs           []string `mapstructure:"program_ids"`
	OperationsRoomMember bool     `mapstructure:"operations_room_member"`
	LarkOpenID           string   `mapstructure:"lark_open_id"`
}

// Notification drivers
const (
	DriverLog  = "log"
	DriverLark = "lark"
)

// Load reads configPath (optional) and the environment into a Config
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.bulk_limit", 50)
	v.SetDefault("workflow.timezone", "UTC")
	v.SetDefault("workflow.sla_days", 5)

	v.SetDefault("notification.driver", DriverLog)
	v.SetDefault("notification.parallelism", 4)

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.sla_poll_interval", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "invoice_workflow")
}

func bindEnvVars(v *viper.Viper) {
	// Credentials come from the environment only
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

var validRoles = map[string]bool{
	"admin": true, "manager": true, "finance": true,
	"operations": true, "submitter": true, "viewer": true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Workflow.BulkLimit <= 0 {
		errs = append(errs, errors.New("workflow.bulk_limit must be positive"))
	}
	if c.Workflow.SLADays <= 0 {
		errs = append(errs, errors.New("workflow.sla_days must be positive"))
	}
	if _, err := c.Workflow.Location(); err != nil {
		errs = append(errs, fmt.Errorf("workflow.timezone: %w", err))
	}

	switch c.Notification.Driver {
	case DriverLog:
	case DriverLark:
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			errs = append(errs, errors.New("lark.app_id and lark.app_secret are required for the lark notification driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.driver must be %q or %q, got %q", DriverLog, DriverLark, c.Notification.Driver))
	}

	if c.Worker.Enabled && c.Worker.SLAPollInterval <= 0 {
		errs = append(errs, errors.New("worker.sla_poll_interval must be positive"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}

	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Errorf("users[%d].id is required", i))
			continue
		}
		if seen[u.ID] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate id %s", i, u.ID))
		}
		seen[u.ID] = true
		if !validRoles[u.Role] {
			errs = append(errs, fmt.Errorf("users[%d]: unknown role %q", i, u.Role))
		}
	}

	return errors.Join(errs...)
}
