package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Workflow      WorkflowConfig      `json:"workflow"`
	Storage       StorageConfig       `json:"storage"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// WorkflowConfig controls the application workflow engine.
type WorkflowConfig struct {
	// DefaultTrack is used until an admin stores a track in workflow settings.
	DefaultTrack string `json:"default_track"`
	// StoreTimeout bounds every repository call made by the engine.
	StoreTimeout time.Duration `json:"store_timeout"`
	// ReminderAge is how long an application may sit in one state before the
	// reminder worker nudges the responsible role.
	ReminderAge time.Duration `json:"reminder_age"`
}

// StorageConfig configures the document blob store.
type StorageConfig struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// NotificationsConfig configures outbound notification channels.
type NotificationsConfig struct {
	EmailEnabled bool   `json:"email_enabled"`
	EmailFrom    string `json:"email_from"`
	SMSEnabled   bool   `json:"sms_enabled"`
	SMSSenderID  string `json:"sms_sender_id"`
	AWSRegion    string `json:"aws_region"`
}

// SecurityConfig holds secrets shared with the identity provider and the
// certificate signer.
type SecurityConfig struct {
	JWTSecret        string `json:"jwt_secret"`
	SignatureSecret  string `json:"signature_secret"`
	IssuingAuthority string `json:"issuing_authority"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "certificate_portal",
			SSLMode: "disable",
		},
		Workflow: WorkflowConfig{
			DefaultTrack: "standard",
			StoreTimeout: 5 * time.Second,
			ReminderAge:  72 * time.Hour,
		},
		Notifications: NotificationsConfig{
			EmailFrom: "no-reply@certificates.gov.example",
		},
		Security: SecurityConfig{
			IssuingAuthority: "Office of the Sub-Divisional Officer",
		},
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if track := os.Getenv("WORKFLOW_DEFAULT_TRACK"); track != "" {
		config.Workflow.DefaultTrack = track
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Storage.Region = region
		config.Notifications.AWSRegion = region
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if secret := os.Getenv("SIGNATURE_SECRET"); secret != "" {
		config.Security.SignatureSecret = secret
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
