package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
	"igharvest/pkg/store"
	"igharvest/pkg/store/storetest"
)

func openMemory(t *testing.T) store.Store {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, openMemory)
}

func TestExternalIDLengthIsEnforced(t *testing.T) {
	s := openMemory(t)
	long := make([]byte, models.MaxExternalIDLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := s.Contents().SaveAll(context.Background(), []models.ContentRecord{
		{ProfileID: "p", ExternalID: string(long), URL: "u", Kind: models.KindPost},
	})
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "igharvest.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Profiles().Save(ctx, &models.Profile{Username: "demoacct", Active: true}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	p, err := s.Profiles().FindByUsername(ctx, "DEMOACCT")
	require.NoError(t, err)
	assert.Equal(t, "demoacct", p.Username)
}
