package cmdutil

import (
	"github.com/spf13/pflag"

	"github.com/quakelab/etasfit/pkg/service"
)

// NewSnapshotRepository builds the snapshot repository selected by the
// --store flag. Redis settings come from the REDIS_* environment variables.
func NewSnapshotRepository(flags *pflag.FlagSet) (*service.SnapshotRepository, error) {
	storeType, err := flags.GetString("store")
	if err != nil {
		return nil, err
	}

	config := &service.PersistenceConfig{}
	switch storeType {
	case "json":
		dir, err := flags.GetString("store-dir")
		if err != nil {
			return nil, err
		}
		config.Json = &service.JsonPersistenceConfig{Directory: dir}

	case "redis":
		redisConfig, err := service.NewRedisPersistenceConfigFromEnv()
		if err != nil {
			return nil, err
		}
		if redisConfig.Expiration, err = flags.GetDuration("store-expiration"); err != nil {
			return nil, err
		}
		config.Redis = redisConfig
	}

	persistence, err := service.NewPersistenceServiceFacade(config).Get(storeType)
	if err != nil {
		return nil, err
	}
	return &service.SnapshotRepository{Service: persistence}, nil
}
