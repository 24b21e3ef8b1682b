package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	options "github.com/kart-io/cyplan/pkg/options/database"
)

type note struct {
	ID   uint
	Body string
}

func TestNewSQLite(t *testing.T) {
	opts := options.NewOptions()
	opts.Driver = options.DriverSQLite
	opts.DSN = filepath.Join(t.TempDir(), "cyplan.db")

	client, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "sqlite", client.Name())
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.DB().AutoMigrate(&note{}))
	require.NoError(t, client.DB().Create(&note{Body: "hello"}).Error)

	var count int64
	require.NoError(t, client.DB().Model(&note{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	opts := options.NewOptions()
	opts.Driver = "oracle"
	opts.DSN = "x"

	_, err := New(context.Background(), opts)
	assert.Error(t, err)

	_, err = New(context.Background(), nil)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("SILENT"))
	assert.Equal(t, gormlogger.Info, parseLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel(""))
}
