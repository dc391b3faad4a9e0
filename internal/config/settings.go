package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are the process settings, read from the environment (and cobra
// flags bound onto the same viper keys).
type Settings struct {
	AccessToken   string
	BaseURL       string
	SearchBaseURL string
	ConfigPath    string
	PerPage       int
	SearchPerPage int
	Timeout       time.Duration
	Host          string
	Port          int
	LogLevel      string
}

// Viper keys. AutomaticEnv maps each to its upper-case environment variable.
const (
	KeyAccessToken   = "sell_access_token"
	KeyBaseURL       = "sell_base_url"
	KeySearchBaseURL = "sell_search_base_url"
	KeyConfigPath    = "incentives_config"
	KeyPerPage       = "sell_per_page"
	KeySearchPerPage = "sell_search_per_page"
	KeyTimeout       = "sell_timeout_s"
	KeyHost          = "host"
	KeyPort          = "port"
	KeyLogLevel      = "log_level"
)

var ErrMissingToken = errors.New("SELL_ACCESS_TOKEN is required")

// NewViper returns a viper instance with every default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBaseURL, "https://api.getbase.com")
	v.SetDefault(KeySearchBaseURL, "")
	v.SetDefault(KeyConfigPath, "config/incentives_config.json")
	v.SetDefault(KeyPerPage, 100)
	v.SetDefault(KeySearchPerPage, 200)
	v.SetDefault(KeyTimeout, 30.0)
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAccessToken, "")
	v.AutomaticEnv()
	return v
}

// LoadSettings reads settings from v. The access token is not checked here;
// commands that talk to the CRM call RequireToken.
func LoadSettings(v *viper.Viper) (Settings, error) {
	s := Settings{
		AccessToken:   strings.TrimSpace(v.GetString(KeyAccessToken)),
		BaseURL:       strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		SearchBaseURL: strings.TrimRight(v.GetString(KeySearchBaseURL), "/"),
		ConfigPath:    v.GetString(KeyConfigPath),
		PerPage:       v.GetInt(KeyPerPage),
		SearchPerPage: v.GetInt(KeySearchPerPage),
		Timeout:       time.Duration(v.GetFloat64(KeyTimeout) * float64(time.Second)),
		Host:          v.GetString(KeyHost),
		Port:          v.GetInt(KeyPort),
		LogLevel:      v.GetString(KeyLogLevel),
	}
	if s.SearchBaseURL == "" {
		s.SearchBaseURL = s.BaseURL
	}

	switch {
	case s.BaseURL == "":
		return s, fmt.Errorf("SELL_BASE_URL must not be empty")
	case s.PerPage <= 0:
		return s, fmt.Errorf("SELL_PER_PAGE must be positive, got %d", s.PerPage)
	case s.SearchPerPage <= 0:
		return s, fmt.Errorf("SELL_SEARCH_PER_PAGE must be positive, got %d", s.SearchPerPage)
	case s.Timeout <= 0:
		return s, fmt.Errorf("SELL_TIMEOUT_S must be positive")
	case s.Port <= 0 || s.Port > 65535:
		return s, fmt.Errorf("PORT out of range: %d", s.Port)
	}
	return s, nil
}

func (s Settings) RequireToken() error {
	if s.AccessToken == "" {
		return ErrMissingToken
	}
	return nil
}

func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
