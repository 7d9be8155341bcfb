package service

import (
	"time"

	"github.com/codingconcepts/env"
	"github.com/pkg/errors"
)

var ErrPersistenceNotExists = errors.New("persistent data does not exists")

type PersistenceService interface {
	NewStore(id string, subIDs ...string) Store
}

type Store interface {
	Load(val interface{}) error
	Save(val interface{}) error
	Reset() error
}

type Expirable interface {
	Expiration() time.Duration
}

type RedisPersistenceConfig struct {
	Host      string `yaml:"host" json:"host" env:"REDIS_HOST"`
	Port      string `yaml:"port" json:"port" env:"REDIS_PORT"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" json:"db" env:"REDIS_DB"`
	Namespace string `yaml:"namespace" json:"namespace" env:"REDIS_NAMESPACE"`

	// Expiration of stored snapshots, zero keeps them forever
	Expiration time.Duration `yaml:"expiration,omitempty" json:"expiration,omitempty"`
}

// NewRedisPersistenceConfigFromEnv reads the REDIS_* variables. Unset
// variables keep the defaults.
func NewRedisPersistenceConfigFromEnv() (*RedisPersistenceConfig, error) {
	config := &RedisPersistenceConfig{
		Host:      "127.0.0.1",
		Port:      "6379",
		Namespace: "etasfit",
	}
	if err := env.Set(config); err != nil {
		return nil, errors.Wrap(err, "unable to read redis settings from the environment")
	}
	return config, nil
}

type JsonPersistenceConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

type PersistenceConfig struct {
	Redis *RedisPersistenceConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Json  *JsonPersistenceConfig  `yaml:"json,omitempty" json:"json,omitempty"`
}
