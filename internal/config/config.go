package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stanstork/designauto/internal/aps"
	"github.com/stanstork/designauto/internal/storage"
	"github.com/stanstork/designauto/internal/transport"
)

const (
	StorageOSS = "oss"
	StorageS3  = "s3"
)

type APSConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	ClientSecretRef string `mapstructure:"client_secret_ref"`
	Nickname        string `mapstructure:"nickname"`
	Alias           string `mapstructure:"alias"`
	Bucket          string `mapstructure:"bucket"`
	BaseURL         string `mapstructure:"base_url"`
	Region          string `mapstructure:"region"`
}

type StorageConfig struct {
	Driver      string           `mapstructure:"driver"`
	Policy      string           `mapstructure:"policy"`
	DownloadTTL time.Duration    `mapstructure:"download_ttl"`
	UploadTTL   time.Duration    `mapstructure:"upload_ttl"`
	S3          storage.S3Config `mapstructure:"s3"`
}

type WorkItemsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
}

type Config struct {
	Port       string            `mapstructure:"port"`
	LogLevel   string            `mapstructure:"log_level"`
	BundlesDir string            `mapstructure:"bundles_dir"`
	WebRoot    string            `mapstructure:"web_root"`
	APS        APSConfig         `mapstructure:"aps"`
	Transport  transport.Options `mapstructure:"transport"`
	Storage    StorageConfig     `mapstructure:"storage"`
	WorkItems  WorkItemsConfig   `mapstructure:"workitems"`
}

var envBindings = map[string]string{
	"aps.client_id":         "APS_CLIENT_ID",
	"aps.client_secret":     "APS_CLIENT_SECRET",
	"aps.client_secret_ref": "APS_CLIENT_SECRET_REF",
	"aps.nickname":          "APS_NICKNAME",
	"aps.alias":             "APS_ALIAS",
	"aps.bucket":            "APS_BUCKET",
	"port":                  "PORT",
	"log_level":             "LOG_LEVEL",
	"storage.driver":        "STORAGE_DRIVER",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("bundles_dir", "bundles")
	v.SetDefault("web_root", "wwwroot")

	v.SetDefault("aps.alias", "dev")
	v.SetDefault("aps.base_url", aps.DefaultBaseURL)
	v.SetDefault("aps.region", aps.DefaultRegion)

	t := transport.DefaultOptions()
	v.SetDefault("transport.breaker_threshold", t.BreakerThreshold)
	v.SetDefault("transport.breaker_interval", t.BreakerInterval)
	v.SetDefault("transport.max_retries", t.MaxRetries)
	v.SetDefault("transport.backoff_delay", t.BackoffDelay)
	v.SetDefault("transport.request_timeout", t.RequestTimeout)

	v.SetDefault("storage.driver", StorageOSS)
	v.SetDefault("storage.policy", aps.PolicyTransient)
	v.SetDefault("storage.download_ttl", storage.DefaultDownloadTTL)
	v.SetDefault("storage.upload_ttl", storage.DefaultUploadTTL)
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("workitems.poll_interval", 2*time.Second)
	v.SetDefault("workitems.wait_timeout", 10*time.Minute)
}

// Load reads config.yaml from the given directories (default "." and
// "./config") when present and overlays the environment. A missing file is
// not an error.
func Load(dirs ...string) (*Config, error) {
	v := viper.New()
	if len(dirs) == 0 {
		dirs = []string{".", "./config"}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}
	cfg.applyDerived()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.APS.Nickname == "" {
		c.APS.Nickname = c.APS.ClientID
	}
	if c.APS.Bucket == "" && c.APS.Nickname != "" {
		c.APS.Bucket = strings.ToLower(c.APS.Nickname) + "-designautomation"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
}

func (c *Config) validate() error {
	if c.APS.ClientID == "" {
		return errors.New("APS_CLIENT_ID must be set")
	}
	if c.APS.ClientSecret == "" && c.APS.ClientSecretRef == "" {
		return errors.New("APS_CLIENT_SECRET or APS_CLIENT_SECRET_REF must be set")
	}
	switch c.Storage.Driver {
	case StorageOSS:
	case StorageS3:
		if c.Storage.S3.Endpoint == "" {
			return errors.New("storage.s3.endpoint must be set for the s3 driver")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
