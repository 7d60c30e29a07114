package config

import (
	"fmt"
	"slices"
	"strings"

	"jasper_srv/internal/jasper"

	"github.com/spf13/viper"
)

// Server содержит настройки HTTP-сервера.
type Server struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
}

// DB содержит параметры подключения к БД истории генераций.
type DB struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Storage описывает архив сгенерированных документов.
type Storage struct {
	Type     string `mapstructure:"type"`
	BasePath string `mapstructure:"basepath"`
	S3       S3     `mapstructure:"s3"`
}

// S3 содержит настройки для S3-совместимого хранилища (AWS S3 или MinIO).
type S3 struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Logging содержит настройки логирования.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Jasper содержит настройки запуска jasperstarter.
type Jasper struct {
	Binary         string `mapstructure:"binary"`
	ResourceDir    string `mapstructure:"resource_dir"`
	ReportDir      string `mapstructure:"report_dir"`
	Catalog        string `mapstructure:"catalog"`
	ExecDisabled   bool   `mapstructure:"exec_disabled"`
	RedirectStderr bool   `mapstructure:"redirect_stderr"`
	RunAsUser      string `mapstructure:"run_as_user"`
}

// RunOptions возвращает параметры запуска процесса.
func (j Jasper) RunOptions() jasper.RunOptions {
	return jasper.RunOptions{
		RedirectStderr: j.RedirectStderr,
		RunAsUser:      j.RunAsUser,
	}
}

// Config объединяет все разделы конфигурации.
type Config struct {
	Server     Server            `mapstructure:"server"`
	DB         DB                `mapstructure:"database"`
	Storage    Storage           `mapstructure:"storage"`
	Logging    Logging           `mapstructure:"logging"`
	Jasper     Jasper            `mapstructure:"jasper"`
	Datasource jasper.Connection `mapstructure:"datasource"`
}

const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"
)

var (
	validDrivers      = []string{"postgres", "sqlite"}
	validStorageTypes = []string{StorageTypeLocal, StorageTypeS3, StorageTypeMinio}
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal", "panic"}
	datasourceKeys    = []string{
		"driver", "host", "port", "username", "password", "database",
		"jdbc_driver", "jdbc_url", "jdbc_dir", "data_file", "json_query", "db_sid",
	}
)

// Load читает конфигурацию из файла и окружения с помощью viper.
func Load() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/jasper-srv")

	// Настройка для environment variables
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()
	bindEnvironmentVariables()

	// Файл конфигурации не обязателен
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.debug", false)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "jasper_srv.db")

	// Storage defaults
	viper.SetDefault("storage.type", StorageTypeLocal)
	viper.SetDefault("storage.basepath", "./archive")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "jasper-srv-reports")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.access_key", "")
	viper.SetDefault("storage.s3.secret_key", "")
	viper.SetDefault("storage.s3.use_ssl", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Jasper defaults
	viper.SetDefault("jasper.binary", "")
	viper.SetDefault("jasper.resource_dir", "")
	viper.SetDefault("jasper.report_dir", "./reports")
	viper.SetDefault("jasper.catalog", "")
	viper.SetDefault("jasper.exec_disabled", false)
	viper.SetDefault("jasper.redirect_stderr", true)
	viper.SetDefault("jasper.run_as_user", "")

	// Datasource defaults (пустой driver - без источника данных)
	for _, key := range datasourceKeys {
		viper.SetDefault("datasource."+key, "")
	}
}

// bindEnvironmentVariables привязывает переменные окружения к конфигурации
func bindEnvironmentVariables() {
	// Server
	viper.BindEnv("server.address", "APP_SERVER_ADDRESS")
	viper.BindEnv("server.debug", "APP_SERVER_DEBUG")

	// Database
	viper.BindEnv("database.driver", "APP_DATABASE_DRIVER")
	viper.BindEnv("database.dsn", "APP_DATABASE_DSN")

	// Storage
	viper.BindEnv("storage.type", "APP_STORAGE_TYPE")
	viper.BindEnv("storage.basepath", "APP_STORAGE_BASEPATH")
	viper.BindEnv("storage.s3.region", "APP_STORAGE_S3_REGION")
	viper.BindEnv("storage.s3.bucket", "APP_STORAGE_S3_BUCKET")
	viper.BindEnv("storage.s3.endpoint", "APP_STORAGE_S3_ENDPOINT")
	viper.BindEnv("storage.s3.access_key", "APP_STORAGE_S3_ACCESS_KEY")
	viper.BindEnv("storage.s3.secret_key", "APP_STORAGE_S3_SECRET_KEY")
	viper.BindEnv("storage.s3.use_ssl", "APP_STORAGE_S3_USE_SSL")

	// Logging
	viper.BindEnv("logging.level", "APP_LOGGING_LEVEL")
	viper.BindEnv("logging.format", "APP_LOGGING_FORMAT")

	// Jasper
	viper.BindEnv("jasper.binary", "APP_JASPER_BINARY")
	viper.BindEnv("jasper.resource_dir", "APP_JASPER_RESOURCE_DIR")
	viper.BindEnv("jasper.report_dir", "APP_JASPER_REPORT_DIR")
	viper.BindEnv("jasper.catalog", "APP_JASPER_CATALOG")
	viper.BindEnv("jasper.exec_disabled", "APP_JASPER_EXEC_DISABLED")
	viper.BindEnv("jasper.redirect_stderr", "APP_JASPER_REDIRECT_STDERR")
	viper.BindEnv("jasper.run_as_user", "APP_JASPER_RUN_AS_USER")

	// Datasource
	for _, key := range datasourceKeys {
		viper.BindEnv("datasource."+key, "APP_DATASOURCE_"+strings.ToUpper(key))
	}
}

// validateConfig проверяет корректность конфигурации
func validateConfig(cfg Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	// База данных
	if !slices.Contains(validDrivers, cfg.DB.Driver) {
		return fmt.Errorf("database driver must be one of %v, got: %s", validDrivers, cfg.DB.Driver)
	}
	if cfg.DB.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	// Хранилище
	if !slices.Contains(validStorageTypes, cfg.Storage.Type) {
		return fmt.Errorf("storage type must be one of %v, got: %s", validStorageTypes, cfg.Storage.Type)
	}
	if cfg.Storage.Type == StorageTypeLocal && cfg.Storage.BasePath == "" {
		return fmt.Errorf("storage basepath cannot be empty for local storage")
	}
	if cfg.Storage.Type == StorageTypeS3 {
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region cannot be empty")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
	}
	if cfg.Storage.Type == StorageTypeMinio {
		if cfg.Storage.S3.Endpoint == "" {
			return fmt.Errorf("MinIO endpoint cannot be empty")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("MinIO bucket cannot be empty")
		}
	}

	// Jasper
	if cfg.Jasper.ReportDir == "" {
		return fmt.Errorf("jasper report_dir cannot be empty")
	}
	if cfg.Datasource.Driver == jasper.DriverJSON && cfg.Datasource.DataFile == "" {
		return fmt.Errorf("datasource data_file is required for the json driver")
	}

	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Logging.Level)) {
		return fmt.Errorf("invalid logging level: %s. Valid levels: %v", cfg.Logging.Level, validLogLevels)
	}

	return nil
}

// IsDevelopment возвращает true, если приложение запущено в режиме разработки
func (c Config) IsDevelopment() bool {
	return c.Server.Debug
}

// String возвращает строковое представление конфигурации (без чувствительных данных)
func (c Config) String() string {
	storage := c.Storage
	if storage.S3.AccessKey != "" {
		storage.S3.AccessKey = "[HIDDEN]"
	}
	if storage.S3.SecretKey != "" {
		storage.S3.SecretKey = "[HIDDEN]"
	}
	datasource := c.Datasource
	if datasource.Password != "" {
		datasource.Password = "[HIDDEN]"
	}
	return fmt.Sprintf("Config{Server: %+v, DB: {Driver: %s, DSN: [HIDDEN]}, Storage: %+v, Logging: %+v, Jasper: %+v, Datasource: %+v}",
		c.Server, c.DB.Driver, storage, c.Logging, c.Jasper, datasource)
}
