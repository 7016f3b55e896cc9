package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "FANOUT"

// AppConfig is the process configuration shared by the CLI and the dispatch service.
type AppConfig struct {
	Inventory InventoryConfig `mapstructure:"inventory"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Output    OutputConfig    `mapstructure:"output"`
}

type InventoryConfig struct {
	Store string      `mapstructure:"store" validate:"oneof=file mongo"`
	File  FileConfig  `mapstructure:"file"`
	Mongo MongoConfig `mapstructure:"mongo"`
	Watch bool        `mapstructure:"watch"`
}

type DispatchConfig struct {
	Workers int           `mapstructure:"workers" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type SSHConfig struct {
	KnownHosts       string        `mapstructure:"known_hosts"`
	UseAgent         bool          `mapstructure:"use_agent"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	DialRetries      uint64        `mapstructure:"dial_retries"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
}

type LogConfig struct {
	Debug      bool   `mapstructure:"debug"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	RequestTopic string   `mapstructure:"request_topic"`
	ResultTopic  string   `mapstructure:"result_topic"`
	GroupID      string   `mapstructure:"group_id"`
}

type ArchiveConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URI        string `mapstructure:"uri" validate:"required_if=Enabled true"`
	DBName     string `mapstructure:"db_name"`
	Collection string `mapstructure:"collection"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("inventory.store", "file")
	v.SetDefault("inventory.file.path", "inventory.yaml")
	v.SetDefault("inventory.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("inventory.mongo.db_name", "fanout")
	v.SetDefault("inventory.mongo.collection", "inventory")
	v.SetDefault("inventory.mongo.id", "inventory")
	v.SetDefault("inventory.watch", false)

	v.SetDefault("dispatch.workers", 0)
	v.SetDefault("dispatch.timeout", 0)

	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.use_agent", true)
	v.SetDefault("ssh.dial_timeout", 10*time.Second)
	v.SetDefault("ssh.dial_retries", 3)
	v.SetDefault("ssh.breaker_threshold", 5)

	v.SetDefault("log.debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.request_topic", "fanout-requests")
	v.SetDefault("kafka.result_topic", "fanout-results")
	v.SetDefault("kafka.group_id", "fanout")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.uri", "")
	v.SetDefault("archive.db_name", "fanout")
	v.SetDefault("archive.collection", "executions")

	v.SetDefault("output.dir", "")
}

// LoadApp reads the configuration file at path (or fanout.yaml in the usual
// locations when path is empty), overlays FANOUT_* environment variables and
// validates the result. v may carry flag bindings; nil means a fresh instance.
func LoadApp(v *viper.Viper, path string) (*AppConfig, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fanout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fanout")
		v.AddConfigPath("/etc/fanout")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// StoreConfig returns the store type and matching store config for the inventory source.
func (c InventoryConfig) StoreConfig() (StoreType, any, error) {
	st, err := ParseStoreType(c.Store)
	if err != nil {
		return 0, nil, err
	}
	if st == MongoStore {
		mc := c.Mongo
		return st, &mc, nil
	}
	fc := c.File
	return st, &fc, nil
}
