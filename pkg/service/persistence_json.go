package service

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type JsonPersistenceService struct {
	Directory string
}

func (s *JsonPersistenceService) NewStore(id string, subIDs ...string) Store {
	return &JsonStore{
		ID:        id,
		Directory: filepath.Join(append([]string{s.Directory}, subIDs...)...),
	}
}

type JsonStore struct {
	ID        string
	Directory string
}

func (store JsonStore) path() string {
	return filepath.Join(store.Directory, store.ID) + ".json"
}

func (store JsonStore) Reset() error {
	err := os.Remove(store.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (store JsonStore) Load(val interface{}) error {
	data, err := os.ReadFile(store.path())
	if os.IsNotExist(err) {
		return ErrPersistenceNotExists
	} else if err != nil {
		return err
	}

	if len(data) == 0 {
		return ErrPersistenceNotExists
	}

	return errors.Wrapf(json.Unmarshal(data, val), "unable to decode %s", store.path())
}

func (store JsonStore) Save(val interface{}) error {
	if err := os.MkdirAll(store.Directory, 0777); err != nil {
		return err
	}

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return os.WriteFile(store.path(), data, 0666)
}
