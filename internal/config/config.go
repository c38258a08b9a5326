package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application. All integration
// settings are explicit here and passed to constructors; nothing reads
// configuration from ambient globals.
type Config struct {
	Environment string `mapstructure:"environment"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Planka struct {
		Enabled       bool          `mapstructure:"enabled"`
		URL           string        `mapstructure:"url"`
		APIToken      string        `mapstructure:"api_token"`
		WebhookSecret string        `mapstructure:"webhook_secret"`
		ProjectID     string        `mapstructure:"project_id"`
		BoardID       string        `mapstructure:"board_id"`
		AutoSync      bool          `mapstructure:"auto_sync"`
		SyncDebounce  time.Duration `mapstructure:"sync_debounce"`
	} `mapstructure:"planka"`

	Scheduler struct {
		Interval time.Duration `mapstructure:"interval"`
		Workers  int           `mapstructure:"workers"`
	} `mapstructure:"scheduler"`

	Auth struct {
		Issuer        string `mapstructure:"issuer"`
		ClientID      string `mapstructure:"client_id"`
		ClientSecret  string `mapstructure:"client_secret"`
		RedirectURL   string `mapstructure:"redirect_url"`
		DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment. An
// optional .env file path may be supplied for local development.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional when everything comes from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "DEV")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("planka.enabled", false)
	viper.SetDefault("planka.url", "http://localhost:3000")
	viper.SetDefault("planka.auto_sync", true)
	viper.SetDefault("planka.sync_debounce", 5*time.Minute)
	viper.SetDefault("scheduler.interval", 3*time.Second)
	viper.SetDefault("scheduler.workers", 4)
}

// normalizeIssuer ensures the provided OIDC issuer string is in a predictable
// form. It removes any trailing slash and leaves scheme and path intact, so
// the URL can be pasted straight from the identity provider's console.
func normalizeIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
