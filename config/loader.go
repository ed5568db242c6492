package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file plus environment
// variables. A .env file in the working directory is loaded first when
// present. Environment variables use the AUTH_ prefix with dots replaced by
// underscores, e.g. AUTH_AUTH_TOKEN_EXPIRE_MINUTES.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; environment variables and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("auth.login_identifier_field", "email")
	v.SetDefault("auth.token_expire_minutes", 240)
	v.SetDefault("auth.verification_required", true)
	v.SetDefault("auth.allow_superuser_signup", false)

	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.issuer", "keg-auth")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 587)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	switch cfg.Auth.LoginIdentifierField {
	case "email", "username":
	default:
		return fmt.Errorf("auth.login_identifier_field must be \"email\" or \"username\", got %q",
			cfg.Auth.LoginIdentifierField)
	}
	if cfg.Auth.TokenExpireMinutes <= 0 {
		return fmt.Errorf("auth.token_expire_minutes must be positive, got %d",
			cfg.Auth.TokenExpireMinutes)
	}
	return nil
}
