package storage

import (
	"context"
	"fmt"
	"time"

	"jasper_srv/internal/config"

	"github.com/sirupsen/logrus"
)

// StorageBuilder строитель архива по конфигурации приложения
type StorageBuilder struct {
	config     config.Config
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewStorageBuilder создает новый строитель хранилища
func NewStorageBuilder(cfg config.Config, logger *logrus.Logger) *StorageBuilder {
	return &StorageBuilder{
		config:     cfg,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
}

// WithRetry меняет параметры повторов
func (b *StorageBuilder) WithRetry(maxRetries int, delay time.Duration) *StorageBuilder {
	b.maxRetries = maxRetries
	b.retryDelay = delay
	return b
}

// Build создает хранилище на основе конфигурации
func (b *StorageBuilder) Build(ctx context.Context) (Storage, error) {
	s3cfg := b.config.Storage.S3

	switch b.config.Storage.Type {
	case StorageTypeS3:
		storage, err := NewS3Storage(ctx, S3Config{
			Region:         s3cfg.Region,
			Bucket:         s3cfg.Bucket,
			Endpoint:       s3cfg.Endpoint,
			AccessKey:      s3cfg.AccessKey,
			SecretKey:      s3cfg.SecretKey,
			ForcePathStyle: s3cfg.Endpoint != "",
		}, b.logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания S3 хранилища: %w", err)
		}
		return b.Wrap(storage), nil

	case StorageTypeMinio:
		storage, err := NewMinioStorage(ctx, MinioConfig{
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			Bucket:    s3cfg.Bucket,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			UseSSL:    s3cfg.UseSSL,
		}, b.logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания MinIO хранилища: %w", err)
		}
		return b.Wrap(storage), nil

	case StorageTypeLocal:
		storage, err := NewLocalStorage(LocalConfig{
			BasePath:    b.config.Storage.BasePath,
			Permissions: 0o755,
		}, b.logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания локального хранилища: %w", err)
		}
		return b.Wrap(storage), nil

	default:
		return nil, fmt.Errorf("неподдерживаемый тип хранилища: %s", b.config.Storage.Type)
	}
}

// Wrap оборачивает хранилище в middleware: валидация, retry, логирование
func (b *StorageBuilder) Wrap(storage Storage) Storage {
	if b.logger != nil {
		storage = NewLoggingMiddleware(storage, b.logger)
		storage = NewRetryMiddleware(storage, b.maxRetries, b.retryDelay, b.logger)
	}
	return NewValidationMiddleware(storage)
}

// NewStorageFromConfig создает хранилище из конфигурации
func NewStorageFromConfig(cfg config.Config, logger *logrus.Logger) (Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return NewStorageBuilder(cfg, logger).Build(ctx)
}
