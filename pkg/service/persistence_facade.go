package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/quakelab/etasfit/pkg/snapshot"
)

type PersistenceServiceFacade struct {
	Redis  *RedisPersistenceService
	Json   *JsonPersistenceService
	Memory *MemoryService
}

// NewPersistenceServiceFacade sets up the configured backends. Memory is
// always available.
func NewPersistenceServiceFacade(config *PersistenceConfig) *PersistenceServiceFacade {
	facade := &PersistenceServiceFacade{Memory: NewMemoryService()}
	if config == nil {
		return facade
	}
	if config.Redis != nil {
		facade.Redis = NewRedisPersistenceService(config.Redis)
	}
	if config.Json != nil {
		facade.Json = &JsonPersistenceService{Directory: config.Json.Directory}
	}
	return facade
}

func (f *PersistenceServiceFacade) Get(t string) (service PersistenceService, err error) {
	switch t {
	case "json":
		if f.Json != nil {
			service = f.Json
		}

	case "redis":
		if f.Redis != nil {
			service = f.Redis
		}

	case "memory":
		service = f.Memory

	default:
		return nil, fmt.Errorf("unsupported persistent type %s", t)
	}

	if service == nil {
		return nil, fmt.Errorf("persistence %s is not configured", t)
	}
	return service, nil
}

const snapshotCollection = "snapshots"

// SnapshotRepository keeps fitted snapshots keyed by their run id.
type SnapshotRepository struct {
	Service PersistenceService
}

func (r *SnapshotRepository) Save(s *snapshot.Snapshot) error {
	if s.ID == "" {
		return errors.New("snapshot has no run id")
	}
	return errors.Wrapf(r.Service.NewStore(s.ID, snapshotCollection).Save(s), "unable to save snapshot %s", s.ID)
}

func (r *SnapshotRepository) Load(id string) (*snapshot.Snapshot, error) {
	s := &snapshot.Snapshot{}
	if err := r.Service.NewStore(id, snapshotCollection).Load(s); err != nil {
		if err == ErrPersistenceNotExists {
			return nil, err
		}
		return nil, errors.Wrapf(err, "unable to load snapshot %s", id)
	}
	return s, nil
}

func (r *SnapshotRepository) Delete(id string) error {
	return r.Service.NewStore(id, snapshotCollection).Reset()
}
