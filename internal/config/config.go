package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/vkuksa/huddle/internal/domain"
)

type TURNServer struct {
	URL        string `mapstructure:"url"`
	Username   string `mapstructure:"username"`
	Credential string `mapstructure:"credential"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Admission policy applied to every room at creation.
	AdmissionPolicy string `mapstructure:"admission_policy"`

	// Sliding-window limit for chat/reaction/gesture events.
	EventLimit  int           `mapstructure:"event_limit"`
	EventWindow time.Duration `mapstructure:"event_window"`

	// ICE servers handed to clients; the STUN/TURN service itself is
	// external.
	STUNURLs []string     `mapstructure:"stun_urls"`
	TURN     []TURNServer `mapstructure:"turn"`
}

func (c *Config) Admission() domain.AdmissionPolicy {
	p := domain.AdmissionPolicy(c.AdmissionPolicy)
	if !p.Valid() {
		return domain.AdmissionOpen
	}
	return p
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("admission_policy", string(domain.AdmissionOpen))
	v.SetDefault("event_limit", 20)
	v.SetDefault("event_window", "10s")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
