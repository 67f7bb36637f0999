// Package config loads uploader settings from a YAML file, NIDB_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NIDB_UPLOAD_SITE_ID.
const EnvPrefix = "NIDB"

type Connection struct {
	Server       string `mapstructure:"server"`
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	// Profile selects a saved connection by index; -1 means none.
	Profile int `mapstructure:"profile"`
}

type Anonymize struct {
	ReplacePatientName bool `mapstructure:"replace_patient_name"`
	ReplacePatientID   bool `mapstructure:"replace_patient_id"`
	ReplaceBirthDate   bool `mapstructure:"replace_birth_date"`
	RemoveBirthDate    bool `mapstructure:"remove_birth_date"`
}

type Upload struct {
	InstanceID            string        `mapstructure:"instance_id"`
	ProjectID             string        `mapstructure:"project_id"`
	SiteID                string        `mapstructure:"site_id"`
	EquipmentID           string        `mapstructure:"equipment_id"`
	MatchIDOnly           bool          `mapstructure:"match_id_only"`
	MaxBatchBytes         uint64        `mapstructure:"max_batch_bytes"`
	MaxBatchFiles         int           `mapstructure:"max_batch_files"`
	Workers               int           `mapstructure:"workers"`
	AbortOnBadTransaction bool          `mapstructure:"abort_on_bad_transaction"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

type Proxy struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type Log struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	AuditFile  string `mapstructure:"audit_file"`
	LedgerFile string `mapstructure:"ledger_file"`
}

type Config struct {
	Connection      Connection `mapstructure:"connection"`
	ConnectionsFile string     `mapstructure:"connections_file"`
	DataDir         string     `mapstructure:"data_dir"`
	Modality        string     `mapstructure:"modality"`
	TempDir         string     `mapstructure:"temp_dir"`
	Anonymize       Anonymize  `mapstructure:"anonymize"`
	Upload          Upload     `mapstructure:"upload"`
	Proxy           Proxy      `mapstructure:"proxy"`
	Log             Log        `mapstructure:"log"`
}

// Dir is the default home of the config file, profiles and logs.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "nidb-uploader")
	}
	return ".nidb-uploader"
}

// New returns a viper instance carrying the defaults and env bindings.
func New() *viper.Viper {
	v := viper.New()
	base := Dir()

	v.SetDefault("connection.server", "")
	v.SetDefault("connection.username", "")
	v.SetDefault("connection.password_hash", "")
	v.SetDefault("connection.profile", -1)
	v.SetDefault("connections_file", filepath.Join(base, "connections.txt"))
	v.SetDefault("data_dir", "")
	v.SetDefault("modality", "DICOM")
	v.SetDefault("temp_dir", filepath.Join(os.TempDir(), "nidb-uploader"))

	v.SetDefault("anonymize.replace_patient_name", true)
	v.SetDefault("anonymize.replace_patient_id", false)
	v.SetDefault("anonymize.replace_birth_date", true)
	v.SetDefault("anonymize.remove_birth_date", false)

	v.SetDefault("upload.instance_id", "")
	v.SetDefault("upload.project_id", "")
	v.SetDefault("upload.site_id", "")
	v.SetDefault("upload.equipment_id", "")
	v.SetDefault("upload.match_id_only", false)
	v.SetDefault("upload.max_batch_bytes", 500_000_000)
	v.SetDefault("upload.max_batch_files", 100)
	v.SetDefault("upload.workers", 4)
	v.SetDefault("upload.abort_on_bad_transaction", false)
	v.SetDefault("upload.timeout", 60*time.Second)

	v.SetDefault("proxy.type", "none")
	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.port", 0)
	v.SetDefault("proxy.user", "")
	v.SetDefault("proxy.password", "")

	v.SetDefault("log.file", filepath.Join(base, "output.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.audit_file", filepath.Join(base, "idmap.txt"))
	v.SetDefault("log.ledger_file", filepath.Join(base, "uploads.db"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads path, or searches the default locations when path is empty.
// A missing file in the default locations is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validProxyTypes = map[string]bool{
		"none": true, "default": true, "socks5": true, "http": true, "httpcaching": true, "ftpcaching": true,
	}
	validLevels = map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
)

// Validate checks enumerations and limits. Missing upload targets are not
// checked here; the upload itself reports them.
func (c *Config) Validate() error {
	c.Proxy.Type = strings.ToLower(strings.TrimSpace(c.Proxy.Type))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	if !validProxyTypes[c.Proxy.Type] {
		return fmt.Errorf("proxy.type %q is not one of none, default, socks5, http, httpcaching, ftpcaching", c.Proxy.Type)
	}
	if c.Proxy.Type != "none" && c.Proxy.Type != "default" {
		if c.Proxy.Host == "" {
			return fmt.Errorf("proxy.host is required for proxy type %q", c.Proxy.Type)
		}
		if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
			return fmt.Errorf("proxy.port %d is out of range", c.Proxy.Port)
		}
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level %q is not valid", c.Log.Level)
	}
	if c.Upload.MaxBatchBytes == 0 {
		return fmt.Errorf("upload.max_batch_bytes must be positive")
	}
	if c.Upload.MaxBatchFiles <= 0 {
		return fmt.Errorf("upload.max_batch_files must be positive")
	}
	if c.Upload.Workers <= 0 {
		return fmt.Errorf("upload.workers must be positive")
	}
	if c.Upload.Timeout < 0 {
		return fmt.Errorf("upload.timeout must not be negative")
	}
	return nil
}
