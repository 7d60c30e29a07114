// Package di собирает граф зависимостей сервиса для fx.
package di

import (
	"context"
	"time"

	"jasper_srv/internal/catalog"
	"jasper_srv/internal/config"
	"jasper_srv/internal/database"
	"jasper_srv/internal/history"
	"jasper_srv/internal/jasper"
	"jasper_srv/internal/server"
	"jasper_srv/internal/service"
	"jasper_srv/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module предоставляет все компоненты сервиса генерации отчетов
var Module = fx.Options(
	fx.Provide(
		config.Load,
		NewLogger,
		newDB,
		storage.NewStorageFromConfig,
		NewJasper,
		NewReporter,
		newGenerator,
		newCatalog,
		newHistory,
		service.NewGenerationService,
		newServer,
	),
)

// NewLogger создает и настраивает логгер на основе конфигурации
func NewLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()

	// Устанавливаем уровень логирования
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Неверный уровень логирования, используется info")
	}
	logger.SetLevel(level)

	// Устанавливаем формат вывода
	switch cfg.Logging.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}

// NewJasper создает клиент jasperstarter
func NewJasper(cfg config.Config, logger *logrus.Logger) (*jasper.Jasper, error) {
	runner := jasper.NewExecRunner(logger)
	runner.Disabled = cfg.Jasper.ExecDisabled
	if runner.Disabled {
		logger.Warn("Запуск jasperstarter отключен конфигурацией")
	}

	return jasper.New(jasper.Options{
		Binary:      cfg.Jasper.Binary,
		ResourceDir: cfg.Jasper.ResourceDir,
		Runner:      runner,
		Logger:      logger,
	})
}

// NewReporter создает генератор отчетов над каталогом шаблонов
func NewReporter(cfg config.Config, j *jasper.Jasper) *jasper.Reporter {
	return jasper.NewReporter(j, cfg.Jasper.ReportDir,
		jasper.WithRunOptions(cfg.Jasper.RunOptions()),
		jasper.WithConnection(cfg.Datasource),
	)
}

func newGenerator(r *jasper.Reporter) service.Generator {
	return r
}

func newDB(lc fx.Lifecycle, cfg config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := database.NewDatabase(database.FromAppConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, logger); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			logger.Info("Закрытие соединения с БД")
			return sqlDB.Close()
		},
	})
	return db, nil
}

func newCatalog(cfg config.Config, logger *logrus.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Load(afero.NewOsFs(), cfg.Jasper.Catalog)
	if err != nil {
		return nil, err
	}
	logger.WithField("reports", cat.Len()).Info("Каталог отчетов загружен")
	return cat, nil
}

func newHistory(db *gorm.DB) history.Repository {
	return history.NewGormRepository(db)
}

func newServer(cfg config.Config, svc *service.GenerationService, logger *logrus.Logger) server.HTTPServer {
	return server.NewServer(cfg, svc, logger)
}
