package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFresh(t *testing.T) (Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFresh(t)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, StorageTypeLocal, cfg.Storage.Type)
	assert.Equal(t, "./reports", cfg.Jasper.ReportDir)
	assert.True(t, cfg.Jasper.RedirectStderr)
	assert.False(t, cfg.Jasper.ExecDisabled)
	assert.True(t, cfg.Datasource.IsZero())

	opts := cfg.Jasper.RunOptions()
	assert.True(t, opts.RedirectStderr)
	assert.False(t, opts.Background)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_JASPER_REPORT_DIR", "/srv/reports")
	t.Setenv("APP_JASPER_BINARY", "/opt/jasperstarter/bin/jasperstarter")
	t.Setenv("APP_JASPER_EXEC_DISABLED", "true")
	t.Setenv("APP_DATASOURCE_DRIVER", "json")
	t.Setenv("APP_DATASOURCE_DATA_FILE", "/srv/data/orders.json")
	t.Setenv("APP_DATASOURCE_JSON_QUERY", "orders.items")
	t.Setenv("APP_STORAGE_TYPE", "minio")
	t.Setenv("APP_STORAGE_S3_ENDPOINT", "localhost:9000")

	cfg, err := loadFresh(t)
	require.NoError(t, err)

	assert.Equal(t, "/srv/reports", cfg.Jasper.ReportDir)
	assert.Equal(t, "/opt/jasperstarter/bin/jasperstarter", cfg.Jasper.Binary)
	assert.True(t, cfg.Jasper.ExecDisabled)
	assert.Equal(t, "json", cfg.Datasource.Driver)
	assert.Equal(t, "/srv/data/orders.json", cfg.Datasource.DataFile)
	assert.Equal(t, "orders.items", cfg.Datasource.JSONQuery)
	assert.Equal(t, StorageTypeMinio, cfg.Storage.Type)
	assert.Equal(t, "localhost:9000", cfg.Storage.S3.Endpoint)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown storage", map[string]string{"APP_STORAGE_TYPE": "ftp"}, "storage type"},
		{"unknown database", map[string]string{"APP_DATABASE_DRIVER": "oracle"}, "database driver"},
		{"minio without endpoint", map[string]string{"APP_STORAGE_TYPE": "minio"}, "MinIO endpoint"},
		{"json without data file", map[string]string{"APP_DATASOURCE_DRIVER": "json"}, "data_file"},
		{"bad log level", map[string]string{"APP_LOGGING_LEVEL": "loud"}, "invalid logging level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadFresh(t)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigStringHidesSecrets(t *testing.T) {
	cfg := Config{
		DB:      DB{Driver: "postgres", DSN: "postgres://user:pass@db/reports"},
		Storage: Storage{Type: StorageTypeS3, S3: S3{AccessKey: "AKIA", SecretKey: "s3cr3t"}},
	}
	cfg.Datasource.Driver = "postgres"
	cfg.Datasource.Password = "hunter2"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cr3t")
	assert.NotContains(t, s, "AKIA")
	assert.NotContains(t, s, "user:pass")
	assert.Contains(t, s, "[HIDDEN]")
}
