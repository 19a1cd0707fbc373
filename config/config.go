package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"worker-hls/entities"
)

type Config struct {
	App       App               `yaml:"app"`
	Server    Server            `yaml:"server"`
	Paths     Paths             `yaml:"paths"`
	Database  Database          `yaml:"database"`
	Targets   []entities.Target `yaml:"targets"`
	Owner     Owner             `yaml:"owner"`
	Stability Stability         `yaml:"stability"`
	Scanner   Scanner           `yaml:"scanner"`
	Watcher   Watcher           `yaml:"watcher"`
	Encoder   Encoder           `yaml:"encoder"`
	Queue     *RabbitMQ         `yaml:"rabbitmq"`
	Storage   Storage           `yaml:"storage"`
}

type App struct {
	Environment string `yaml:"environment"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Enabled  bool   `yaml:"enabled"`
}

type Paths struct {
	UploadDir     string `yaml:"upload_dir"`
	HLSDir        string `yaml:"hls_dir"`
	StateFile     string `yaml:"state_file"`
	PointerPrefix string `yaml:"pointer_prefix"`
}

type Database struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

type Owner struct {
	Match        string        `yaml:"match"`
	Retries      int           `yaml:"retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

type Stability struct {
	Interval     time.Duration `yaml:"interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
	RequeueDelay time.Duration `yaml:"requeue_delay"`
	MaxRequeues  int           `yaml:"max_requeues"`
	SmallChecks  int           `yaml:"small_checks"`
	MediumChecks int           `yaml:"medium_checks"`
	LargeChecks  int           `yaml:"large_checks"`
}

type Scanner struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type Watcher struct {
	Enabled bool `yaml:"enabled"`
	Depth   int  `yaml:"depth"`
}

type Encoder struct {
	FFmpeg  string        `yaml:"ffmpeg"`
	FFprobe string        `yaml:"ffprobe"`
	Timeout time.Duration `yaml:"timeout"`
}

type Storage struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	AccessID        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Secure          bool   `yaml:"secure"`
}

const (
	OwnerMatchLike  = "like"
	OwnerMatchExact = "exact"

	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", "8080")

	v.SetDefault("paths.upload_dir", "public/uploads")
	v.SetDefault("paths.hls_dir", "public/hls")
	v.SetDefault("paths.state_file", "processedVideos.json")
	v.SetDefault("paths.pointer_prefix", "/hls")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("owner.match", OwnerMatchLike)
	v.SetDefault("owner.retries", 5)
	v.SetDefault("owner.initial_delay", 2*time.Second)

	v.SetDefault("stability.interval", 3*time.Second)
	v.SetDefault("stability.max_wait", time.Hour)
	v.SetDefault("stability.requeue_delay", 30*time.Second)
	v.SetDefault("stability.max_requeues", 3)
	v.SetDefault("stability.small_checks", 3)
	v.SetDefault("stability.medium_checks", 5)
	v.SetDefault("stability.large_checks", 8)

	v.SetDefault("scanner.enabled", true)
	v.SetDefault("scanner.interval", 10*time.Second)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.depth", 2)

	v.SetDefault("encoder.ffmpeg", "ffmpeg")
	v.SetDefault("encoder.ffprobe", "ffprobe")
	v.SetDefault("encoder.timeout", time.Duration(0))

	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.kind", "direct")
	v.SetDefault("rabbitmq.exchange_name", "upload_exchange")
	v.SetDefault("rabbitmq.queue_name", "hls_upload_queue")
	v.SetDefault("rabbitmq.routing_key", "upload.video")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.prefix", "hls")
}

// Load reads config.yaml from path (optional) with HLS_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var targets []entities.Target
	if err := v.UnmarshalKey("targets", &targets); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	for i := range targets {
		targets[i] = targets[i].WithDefaults()
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Enabled:  v.GetBool("server.enabled"),
		},
		Paths: Paths{
			UploadDir:     v.GetString("paths.upload_dir"),
			HLSDir:        v.GetString("paths.hls_dir"),
			StateFile:     v.GetString("paths.state_file"),
			PointerPrefix: strings.TrimSuffix(v.GetString("paths.pointer_prefix"), "/"),
		},
		Database: Database{
			Driver:   v.GetString("database.driver"),
			DSN:      v.GetString("database.dsn"),
			LogLevel: v.GetString("database.log_level"),
		},
		Targets: targets,
		Owner: Owner{
			Match:        strings.ToLower(v.GetString("owner.match")),
			Retries:      v.GetInt("owner.retries"),
			InitialDelay: v.GetDuration("owner.initial_delay"),
		},
		Stability: Stability{
			Interval:     v.GetDuration("stability.interval"),
			MaxWait:      v.GetDuration("stability.max_wait"),
			RequeueDelay: v.GetDuration("stability.requeue_delay"),
			MaxRequeues:  v.GetInt("stability.max_requeues"),
			SmallChecks:  v.GetInt("stability.small_checks"),
			MediumChecks: v.GetInt("stability.medium_checks"),
			LargeChecks:  v.GetInt("stability.large_checks"),
		},
		Scanner: Scanner{
			Enabled:  v.GetBool("scanner.enabled"),
			Interval: v.GetDuration("scanner.interval"),
		},
		Watcher: Watcher{
			Enabled: v.GetBool("watcher.enabled"),
			Depth:   v.GetInt("watcher.depth"),
		},
		Encoder: Encoder{
			FFmpeg:  v.GetString("encoder.ffmpeg"),
			FFprobe: v.GetString("encoder.ffprobe"),
			Timeout: v.GetDuration("encoder.timeout"),
		},
		Queue: &RabbitMQ{
			Enabled:      v.GetBool("rabbitmq.enabled"),
			Host:         v.GetString("rabbitmq.host"),
			Port:         v.GetInt("rabbitmq.port"),
			User:         v.GetString("rabbitmq.user"),
			Pass:         v.GetString("rabbitmq.pass"),
			Kind:         v.GetString("rabbitmq.kind"),
			ExchangeName: v.GetString("rabbitmq.exchange_name"),
			QueueName:    v.GetString("rabbitmq.queue_name"),
			RoutingKey:   v.GetString("rabbitmq.routing_key"),
		},
		Storage: Storage{
			Enabled:         v.GetBool("storage.enabled"),
			URL:             v.GetString("storage.url"),
			AccessID:        v.GetString("storage.access_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			Bucket:          v.GetString("storage.bucket"),
			Prefix:          strings.Trim(v.GetString("storage.prefix"), "/"),
			Secure:          v.GetBool("storage.secure"),
		},
	}

	if err := cfg.resolvePaths(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) error {
	for _, p := range []*string{&c.Paths.UploadDir, &c.Paths.HLSDir, &c.Paths.StateFile} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(base, *p))
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSqlite:
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Owner.Match != OwnerMatchLike && c.Owner.Match != OwnerMatchExact {
		errs = append(errs, fmt.Errorf("owner.match must be %q or %q", OwnerMatchLike, OwnerMatchExact))
	}
	if c.Paths.UploadDir == "" || c.Paths.HLSDir == "" || c.Paths.StateFile == "" {
		errs = append(errs, errors.New("paths.upload_dir, paths.hls_dir and paths.state_file are required"))
	}
	if c.Stability.Interval <= 0 || c.Stability.MaxWait <= 0 {
		errs = append(errs, errors.New("stability.interval and stability.max_wait must be positive"))
	}
	if c.Scanner.Enabled && c.Scanner.Interval <= 0 {
		errs = append(errs, errors.New("scanner.interval must be positive"))
	}
	if c.Storage.Enabled && (c.Storage.URL == "" || c.Storage.Bucket == "") {
		errs = append(errs, errors.New("storage.url and storage.bucket are required when storage is enabled"))
	}
	if c.Queue != nil && c.Queue.Enabled && c.Queue.Host == "" {
		errs = append(errs, errors.New("rabbitmq.host is required when rabbitmq is enabled"))
	}
	return errors.Join(errs...)
}
