// pkg/config/config.go
package config

import (
	"errors"
	"fmt"

	"github.com/andrej220/fanout/pkg/config/configstore"
	"github.com/andrej220/fanout/pkg/config/filestore"
	"github.com/andrej220/fanout/pkg/config/mongostore"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

var (
	ErrInvalidStoreType = errors.New("invalid store type")
)

// Config interface that combines all store capabilities
type Config interface {
	configstore.ConfigStore
	configstore.Watcher
}

type FileConfig struct {
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri" mapstructure:"uri"`
	DBName   string `yaml:"dbName" json:"dbName" mapstructure:"db_name"`
	CollName string `yaml:"collName" json:"collName" mapstructure:"collection"`
	ID       string `yaml:"id" json:"id" mapstructure:"id"` // Document ID
}

func ParseStoreType(s string) (StoreType, error) {
	switch s {
	case "", "file":
		return FileStore, nil
	case "mongo":
		return MongoStore, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStoreType, s)
}

func NewStore(storeType StoreType, cfg any) (Config, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file store, expected *FileConfig")
		}
		return filestore.New(fileCfg.Path), nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for mongo store, expected *MongoConfig")
		}
		return mongostore.New(mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
	default:
		return nil, ErrInvalidStoreType
	}
}
