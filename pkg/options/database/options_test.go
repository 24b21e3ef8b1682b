package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw    string
		driver string
		dsn    string
	}{
		{"sqlite:///cyplanai.db", DriverSQLite, "cyplanai.db"},
		{"sqlite:////var/lib/cyplan.db", DriverSQLite, "/var/lib/cyplan.db"},
		{"sqlite://", DriverSQLite, ":memory:"},
		{"data/cyplan.db", DriverSQLite, "data/cyplan.db"},
		{"postgres://u:p@db:5432/cyplan", DriverPostgres, "postgres://u:p@db:5432/cyplan"},
		{"mysql://u:p@tcp(db:3306)/cyplan?parseTime=true", DriverMySQL, "u:p@tcp(db:3306)/cyplan?parseTime=true"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			driver, dsn, err := ParseURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}

	_, _, err := ParseURL("oracle://x")
	assert.Error(t, err)
}

func TestCompleteFromEnv(t *testing.T) {
	t.Setenv(URLEnv, "postgres://u:p@db/cyplan")
	o := NewOptions()
	require.NoError(t, o.Complete())
	assert.Equal(t, DriverPostgres, o.Driver)
	assert.Empty(t, o.Validate())
}

func TestCompleteDefault(t *testing.T) {
	t.Setenv(URLEnv, "")
	o := NewOptions()
	require.NoError(t, o.Complete())
	assert.Equal(t, DriverSQLite, o.Driver)
	assert.Equal(t, "cyplanai.db", o.DSN)
}
