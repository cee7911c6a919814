package config

import (
	"time"

	"github.com/raoulx24/dir-archiver/internal/retention"
)

type Config struct {
	Source       SourceConfig      `yaml:"source"`
	Destination  DestinationConfig `yaml:"destination"`
	Retention    RetentionConfig   `yaml:"retention"`
	Schedule     ScheduleConfig    `yaml:"schedule"`
	Hooks        HooksConfig       `yaml:"hooks"`
	Restore      RestoreConfig     `yaml:"restore"`
	Logging      LoggingConfig     `yaml:"logging"`
	Metrics      MetricsConfig     `yaml:"metrics"`
	ConfigReload ReloadConfig      `yaml:"configReload"`

	// filled by Validate
	policy       retention.Policy
	restoreStamp *time.Time
}

type SourceConfig struct {
	Dirs     []string `yaml:"dirs" validate:"required,min=1,dive,required"`
	Excludes []string `yaml:"excludes"` // regular expressions, matched from the start of the path
	DumpDir  string   `yaml:"dumpDir" validate:"required"`
	// Parallelism bounds how many directories are archived and uploaded at once.
	Parallelism      int `yaml:"parallelism" validate:"gte=1"`
	CompressionLevel int `yaml:"compressionLevel" validate:"gte=-2,lte=9"`
}

type DestinationConfig struct {
	Bucket string `yaml:"bucket" validate:"required"`
	// Region empty means "ask the instance metadata service".
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
	// PartSize is the multipart chunk size; archives larger than one part
	// are uploaded in parts.
	PartSize             int64         `yaml:"partSize" validate:"gte=5242880"`
	Timeout              time.Duration `yaml:"timeout" validate:"gt=0"`
	ServerSideEncryption string        `yaml:"serverSideEncryption" validate:"omitempty,oneof=AES256 aws:kms"`
}

type RetentionConfig struct {
	// Pattern is "hourly,daily,weekly,monthly,yearly" keep counts.
	Pattern string `yaml:"pattern" validate:"required"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron" validate:"omitempty,cron"`
	// RunOnStart triggers one backup as soon as the daemon starts.
	RunOnStart bool `yaml:"runOnStart"`
}

type HooksConfig struct {
	PreBackup   string `yaml:"preBackup"`
	PostBackup  string `yaml:"postBackup"`
	PreRestore  string `yaml:"preRestore"`
	PostRestore string `yaml:"postRestore"`
}

type RestoreConfig struct {
	// Stamp selects a specific snapshot, "YYYY-MM-DD-HH-mm-ss". Empty restores the latest.
	Stamp string `yaml:"stamp"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=json console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

type ReloadConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Method         string        `yaml:"method" validate:"oneof=auto fsnotify poll"`
	PollInterval   time.Duration `yaml:"pollInterval" validate:"gt=0"`
	DebounceWindow time.Duration `yaml:"debounceWindow" validate:"gte=0"`
}

// DefaultPartSize matches the historical 50 MiB upload chunk.
const DefaultPartSize = 50 * 1024 * 1024

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			DumpDir:     "/tmp/backup-dump",
			Parallelism: 2,
		},
		Destination: DestinationConfig{
			Prefix:   "backups",
			PartSize: DefaultPartSize,
			Timeout:  30 * time.Minute,
		},
		Retention: RetentionConfig{Pattern: retention.DefaultPattern},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		ConfigReload: ReloadConfig{
			Method:         "auto",
			PollInterval:   10 * time.Second,
			DebounceWindow: 500 * time.Millisecond,
		},
	}
}

// Policy returns the retention policy parsed by Validate.
func (c *Config) Policy() retention.Policy {
	return c.policy
}

// RestoreStamp returns the explicit restore target parsed by Validate, or nil.
func (c *Config) RestoreStamp() *time.Time {
	return c.restoreStamp
}
