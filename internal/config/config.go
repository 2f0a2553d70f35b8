package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
)

// Error is the class of configuration errors. They are reported before any
// store is contacted.
var Error = errs.Class("configuration")

// EnvPrefix prefixes every environment variable, e.g. REVMIGRATE_STORE_URL.
const EnvPrefix = "REVMIGRATE"

// Keys understood in config files, environment variables and flags.
const (
	KeyStoreURL       = "store-url"
	KeyStoreSecret    = "store-secret"
	KeyUploadsURL     = "uploads-url"
	KeyConcurrency    = "concurrency"
	KeyGhost          = "ghost"
	KeyNoGhost        = "no-ghost"
	KeyRequestTimeout = "request-timeout"
	KeyLoadRate       = "load-rate"
	KeyExclusions     = "exclusions"
)

// Config holds resolved settings shared by extract and load.
type Config struct {
	StoreURL       string        `json:"store_url"`
	StoreSecret    string        `json:"-"`
	UploadsURL     string        `json:"uploads_url,omitempty"`
	Concurrency    int           `json:"concurrency"`
	Ghost          string        `json:"ghost,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout"`
	LoadRate       int           `json:"load_rate,omitempty"`
	Exclusions     string        `json:"exclusions,omitempty"`
	ConfigFile     string        `json:"config_file,omitempty"`
}

// New returns a viper instance reading REVMIGRATE_* environment variables
// with defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyConcurrency, 20)
	v.SetDefault(KeyGhost, ident.DefaultGhost)
	v.SetDefault(KeyNoGhost, false)
	v.SetDefault(KeyRequestTimeout, time.Minute)
	v.SetDefault(KeyLoadRate, 0)
	return v
}

// BindFlags makes the named flags override every other source.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys ...string) error {
	for _, k := range keys {
		f := flags.Lookup(k)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(k, f); err != nil {
			return Error.New("binding flag %s: %v", k, err)
		}
	}
	return nil
}

// Resolve reads configFile when given and returns the merged settings.
// Precedence is flags, then environment, then config file, then defaults.
func Resolve(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, Error.New("reading %s: %v", configFile, err)
		}
	}

	cfg := &Config{
		StoreURL:       strings.TrimSpace(v.GetString(KeyStoreURL)),
		StoreSecret:    v.GetString(KeyStoreSecret),
		UploadsURL:     strings.TrimSpace(v.GetString(KeyUploadsURL)),
		Concurrency:    v.GetInt(KeyConcurrency),
		Ghost:          v.GetString(KeyGhost),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		LoadRate:       v.GetInt(KeyLoadRate),
		Exclusions:     v.GetString(KeyExclusions),
		ConfigFile:     configFile,
	}
	if v.GetBool(KeyNoGhost) {
		cfg.Ghost = ""
	}
	return cfg, nil
}

// Validate checks the settings needed to talk to a store.
func (c *Config) Validate() error {
	var problems []string

	if c.StoreURL == "" {
		problems = append(problems, "store URL is required (--store-url or "+EnvPrefix+"_STORE_URL)")
	} else if !strings.HasPrefix(c.StoreURL, "sqlite:") {
		u, err := url.Parse(c.StoreURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			problems = append(problems, "store URL must be an http(s) URL or sqlite:<path>")
		}
	}
	if c.UploadsURL != "" {
		u, err := url.Parse(c.UploadsURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "uploads URL must be an absolute URL")
		}
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.Ghost != "" && !ident.Pattern.MatchString(c.Ghost) {
		problems = append(problems, "ghost must look like github:<number>")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request timeout must be positive")
	}
	if c.LoadRate < 0 {
		problems = append(problems, "load rate must not be negative")
	}

	if len(problems) > 0 {
		return Error.New("%s", strings.Join(problems, "; "))
	}
	return nil
}
