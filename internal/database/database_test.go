package database

import (
	"testing"

	"github.com/formdeck/core/internal/config"
	"github.com/formdeck/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnectSQLiteMigrates(t *testing.T) {
	cfg := &config.AppConfig{
		Env:      "production",
		Database: config.DatabaseRuntimeConfig{Driver: config.DriverSQLite},
		DSN:      "file::memory:?cache=shared",
	}
	db, err := Connect(cfg, zap.NewNop(), true)
	require.NoError(t, err)

	for _, model := range []interface{}{
		&models.ModuleModel{},
		&models.FormModel{},
		&models.FormFieldModel{},
		&models.FormRecordModel{},
		&models.LookupSourceModel{},
		&models.LookupFieldRelationModel{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	cfg := &config.AppConfig{Database: config.DatabaseRuntimeConfig{Driver: "oracle"}}
	_, err := Connect(cfg, nil, false)
	require.Error(t, err)
}
