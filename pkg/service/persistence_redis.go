package service

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var redisLogger = logrus.WithFields(logrus.Fields{
	"persistence": "redis",
})

type RedisPersistenceService struct {
	redis  *redis.Client
	config *RedisPersistenceConfig
}

func NewRedisPersistenceService(config *RedisPersistenceConfig) *RedisPersistenceService {
	client := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(config.Host, config.Port),
		// pragma: allowlist nextline secret
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisPersistenceService{
		redis:  client,
		config: config,
	}
}

// Ping checks that the server is reachable.
func (s *RedisPersistenceService) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *RedisPersistenceService) Close() error {
	return s.redis.Close()
}

func (s *RedisPersistenceService) NewStore(id string, subIDs ...string) Store {
	if len(subIDs) > 0 {
		id += ":" + strings.Join(subIDs, ":")
	}

	if s.config != nil && s.config.Namespace != "" {
		id = s.config.Namespace + ":" + id
	}

	var expiration time.Duration
	if s.config != nil {
		expiration = s.config.Expiration
	}

	return &RedisStore{
		redis:      s.redis,
		ID:         id,
		expiration: expiration,
	}
}

type RedisStore struct {
	redis *redis.Client

	ID string

	expiration time.Duration
}

func (store *RedisStore) Load(val interface{}) error {
	if store.redis == nil {
		return errors.New("can not load from redis, possible cause: redis persistence is not configured")
	}

	data, err := store.redis.Get(context.Background(), store.ID).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrPersistenceNotExists
		}

		return err
	}

	redisLogger.Debugf("[redis] get key %q, %d bytes", store.ID, len(data))

	// skip null data
	if len(data) == 0 || data == "null" {
		return ErrPersistenceNotExists
	}

	return json.Unmarshal([]byte(data), val)
}

func (store *RedisStore) Save(val interface{}) error {
	if val == nil {
		return nil
	}

	expiration := store.expiration
	if expiringData, ok := val.(Expirable); ok {
		expiration = expiringData.Expiration()
	}

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	_, err = store.redis.Set(context.Background(), store.ID, data, expiration).Result()

	redisLogger.Debugf("[redis] set key %q, %d bytes, expiration = %s", store.ID, len(data), expiration)

	return err
}

func (store *RedisStore) Reset() error {
	_, err := store.redis.Del(context.Background(), store.ID).Result()
	return err
}
