package cmdutil

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/service"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	PersistentFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestNewSnapshotRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewSnapshotRepository(newFlags(t, "--store-dir", dir))
	require.NoError(t, err)
	if assert.IsType(t, &service.JsonPersistenceService{}, repo.Service) {
		assert.Equal(t, dir, repo.Service.(*service.JsonPersistenceService).Directory)
	}

	repo, err = NewSnapshotRepository(newFlags(t, "--store", "memory"))
	require.NoError(t, err)
	assert.IsType(t, &service.MemoryService{}, repo.Service)

	_, err = NewSnapshotRepository(newFlags(t, "--store", "s3"))
	assert.Error(t, err)
}

func TestConnectDatabase_Disabled(t *testing.T) {
	db, err := ConnectDatabase(context.Background(), newFlags(t))
	require.NoError(t, err)
	assert.Nil(t, db)
}
