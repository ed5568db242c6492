package config

import (
	"fmt"
	"time"
)

// Config is the full configuration surface consumed by the module and the
// demo host.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// DSN returns the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// AuthConfig tunes the authorization core itself.
type AuthConfig struct {
	// LoginIdentifierField names the column users log in with, "email" or
	// "username".
	LoginIdentifierField string `mapstructure:"login_identifier_field"`
	// TokenExpireMinutes bounds the lifetime of password-reset and
	// verification tokens.
	TokenExpireMinutes int `mapstructure:"token_expire_minutes"`
	// VerificationRequired gates whether new accounts must confirm email
	// ownership before becoming active.
	VerificationRequired bool `mapstructure:"verification_required"`
	// AllowSuperuserSignup permits self-registration to request superuser
	// status. Off by default.
	AllowSuperuserSignup bool `mapstructure:"allow_superuser_signup"`
	// PublicBaseURL prefixes the links embedded in reset and verification
	// mails.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// TokenWindow returns the token expiration window as a duration.
func (c AuthConfig) TokenWindow() time.Duration {
	return time.Duration(c.TokenExpireMinutes) * time.Minute
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
