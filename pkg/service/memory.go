package service

import (
	"reflect"
	"strings"
	"sync"
)

type MemoryService struct {
	mu    sync.Mutex
	Slots map[string]interface{}
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		Slots: make(map[string]interface{}),
	}
}

func (s *MemoryService) NewStore(id string, subIDs ...string) Store {
	key := strings.Join(append([]string{id}, subIDs...), ":")
	return &MemoryStore{
		Key:    key,
		memory: s,
	}
}

type MemoryStore struct {
	Key    string
	memory *MemoryService
}

func (store *MemoryStore) Save(val interface{}) error {
	store.memory.mu.Lock()
	defer store.memory.mu.Unlock()
	store.memory.Slots[store.Key] = val
	return nil
}

func (store *MemoryStore) Load(val interface{}) error {
	store.memory.mu.Lock()
	data, ok := store.memory.Slots[store.Key]
	store.memory.mu.Unlock()
	if !ok {
		return ErrPersistenceNotExists
	}

	v := reflect.ValueOf(val)
	dataRV := reflect.ValueOf(data)
	if dataRV.Type() == v.Type() {
		// saved as pointer, load the pointee
		dataRV = dataRV.Elem()
	}
	v.Elem().Set(dataRV)
	return nil
}

func (store *MemoryStore) Reset() error {
	store.memory.mu.Lock()
	defer store.memory.mu.Unlock()
	delete(store.memory.Slots, store.Key)
	return nil
}
