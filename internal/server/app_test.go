package server

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/exius/internal/server/config"
	"github.com/dmitrijs2005/exius/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage_Memory(t *testing.T) {
	s, err := newStorage(context.Background(), &config.Config{StorageBackend: config.StorageMemory})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, s)
}

func TestNewStorage_S3(t *testing.T) {
	s, err := newStorage(context.Background(), &config.Config{
		StorageBackend: config.StorageS3,
		S3RootUser:     "u",
		S3RootPassword: "p",
		S3Bucket:       "b",
		S3Region:       "us-east-1",
		S3BaseEndpoint: "http://127.0.0.1:9000/",
	})
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Storage{}, s)
}

func TestNewStorage_Unknown(t *testing.T) {
	_, err := newStorage(context.Background(), &config.Config{StorageBackend: "ftp"})
	assert.ErrorContains(t, err, `unknown storage backend "ftp"`)
}

func TestNewApp_BadDSN(t *testing.T) {
	_, err := NewApp(context.Background(), &config.Config{DatabaseDSN: "postgres://invalid host:1/x"})
	assert.ErrorContains(t, err, "db init error")
}
