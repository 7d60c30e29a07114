package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"jasper_srv/internal/catalog"
	"jasper_srv/internal/history"
	"jasper_srv/internal/jasper"
	"jasper_srv/internal/models"
	"jasper_srv/internal/storage"

	"github.com/sirupsen/logrus"
)

const (
	defaultFormat = "pdf"
	archivePrefix = "reports"

	// Размер страницы при выгрузке истории целиком
	exportPageSize = 100
)

// ErrNotArchived возвращается при скачивании документа, который не сохранялся в архив
var ErrNotArchived = fmt.Errorf("%w: document is not archived", jasper.ErrNotFound)

// Generator генерирует документы по шаблонам jasper. Реализуется *jasper.Reporter.
type Generator interface {
	Generate(ctx context.Context, spec jasper.ReportSpec, params map[string]string, format string) ([]byte, error)
	Parameters(ctx context.Context, name string) ([]jasper.ParameterInfo, error)
}

// GenerateRequest запрос на генерацию документа
type GenerateRequest struct {
	// Name имя отчета в истории; по умолчанию главный шаблон спецификации
	Name       string            `json:"name,omitempty"`
	Spec       jasper.ReportSpec `json:"spec"`
	Format     string            `json:"format,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Archive    bool              `json:"archive,omitempty"`
}

// GenerateResult результат генерации
type GenerateResult struct {
	Generation  *models.Generation
	Document    []byte
	ContentType string
	Filename    string
}

// GenerationList страница истории генераций
type GenerationList struct {
	Generations []models.Generation `json:"generations"`
	Total       int64               `json:"total"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
}

// GenerationService связывает генерацию, архив и историю
type GenerationService struct {
	generator Generator
	catalog   *catalog.Catalog
	history   history.Repository
	storage   storage.Storage
	logger    *logrus.Logger
}

// NewGenerationService создает сервис генерации
func NewGenerationService(
	generator Generator,
	cat *catalog.Catalog,
	repo history.Repository,
	store storage.Storage,
	logger *logrus.Logger,
) *GenerationService {
	if cat == nil {
		cat = catalog.Empty()
	}
	return &GenerationService{
		generator: generator,
		catalog:   cat,
		history:   repo,
		storage:   store,
		logger:    logger,
	}
}

// Catalog возвращает каталог именованных отчетов
func (s *GenerationService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Generate генерирует документ и записывает результат в историю
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.Format == "" {
		req.Format = defaultFormat
	}
	if req.Spec.IsZero() {
		return nil, fmt.Errorf("%w: no report given", jasper.ErrInvalidInput)
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}
	if !jasper.ValidFormat(req.Format) {
		return nil, fmt.Errorf("%w: %q", jasper.ErrInvalidFormat, req.Format)
	}
	name := req.Name
	if name == "" {
		name = req.Spec.Main()
	}

	logger := s.logger.WithFields(logrus.Fields{
		"report": name,
		"format": req.Format,
	})

	generation := &models.Generation{
		Report:     name,
		Spec:       req.Spec.String(),
		Format:     req.Format,
		Status:     models.StatusPending,
		Parameters: models.ParametersJSON(req.Parameters),
	}
	if err := s.history.Create(ctx, generation); err != nil {
		logger.WithError(err).Error("Ошибка сохранения записи о генерации")
		return nil, fmt.Errorf("ошибка сохранения записи о генерации: %w", err)
	}
	logger = logger.WithField("generation", generation.UUID)

	start := time.Now()
	document, genErr := s.generator.Generate(ctx, req.Spec, req.Parameters, req.Format)
	duration := time.Since(start)

	if genErr != nil {
		generation.MarkFailed(ErrorKind(genErr), genErr.Error(), duration)
		s.saveRecord(ctx, logger, generation)
		logger.WithError(genErr).WithField("kind", generation.ErrorKind).Warn("Генерация отчета завершилась ошибкой")
		return nil, genErr
	}

	generation.MarkCompleted(int64(len(document)), duration)
	if req.Archive {
		key := s.storage.JoinPath(archivePrefix, name, generation.UUID+"."+req.Format)
		if err := s.storage.Save(ctx, key, bytes.NewReader(document)); err != nil {
			// Документ уже получен, ошибку архива только фиксируем
			logger.WithError(err).Error("Ошибка сохранения документа в архив")
			generation.Message = "archive failed: " + err.Error()
		} else {
			generation.ArchiveKey = key
		}
	}
	s.saveRecord(ctx, logger, generation)

	logger.WithFields(logrus.Fields{
		"size":     generation.Size,
		"duration": duration,
		"archived": generation.ArchiveKey != "",
	}).Info("Отчет сгенерирован успешно")

	return &GenerateResult{
		Generation:  generation,
		Document:    document,
		ContentType: ContentType(req.Format),
		Filename:    Filename(generation),
	}, nil
}

// GenerateNamed генерирует отчет из каталога. Параметры запроса дополняют и
// переопределяют параметры каталога; пустой format берется из каталога.
func (s *GenerationService) GenerateNamed(ctx context.Context, name string, params map[string]string, format string, archive bool) (*GenerateResult, error) {
	entry, err := s.catalog.Resolve(name)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = entry.Format
	}
	return s.Generate(ctx, GenerateRequest{
		Name:       entry.Name,
		Spec:       entry.Spec,
		Format:     format,
		Parameters: entry.MergeParameters(params),
		Archive:    archive,
	})
}

// Parameters возвращает параметры отчета. Имя ищется сначала в каталоге,
// затем трактуется как имя шаблона.
func (s *GenerationService) Parameters(ctx context.Context, name string) ([]jasper.ParameterInfo, error) {
	template := name
	if entry, err := s.catalog.Resolve(name); err == nil {
		template = entry.Spec.Main()
	}
	if template == "" {
		return nil, fmt.Errorf("%w: report %q has no single main template", jasper.ErrUnsupportedOperation, name)
	}
	if err := jasper.ValidateName(template); err != nil {
		return nil, err
	}
	return s.generator.Parameters(ctx, template)
}

// ListGenerations возвращает страницу истории
func (s *GenerationService) ListGenerations(ctx context.Context, params history.ListParams) (*GenerationList, error) {
	params = params.Normalize()

	generations, total, err := s.history.List(ctx, params)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения истории генераций")
		return nil, fmt.Errorf("ошибка получения истории генераций: %w", err)
	}

	return &GenerationList{
		Generations: generations,
		Total:       total,
		Page:        params.Page,
		PageSize:    params.PageSize,
		TotalPages:  int((total + int64(params.PageSize) - 1) / int64(params.PageSize)),
	}, nil
}

// GetGeneration возвращает запись по идентификатору
func (s *GenerationService) GetGeneration(ctx context.Context, id string) (*models.Generation, error) {
	return s.history.GetByUUID(ctx, id)
}

// DownloadGeneration открывает архивный документ
func (s *GenerationService) DownloadGeneration(ctx context.Context, id string) (io.ReadCloser, *models.Generation, error) {
	generation, err := s.history.GetByUUID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !generation.IsArchived() {
		return nil, generation, fmt.Errorf("%w: %s", ErrNotArchived, id)
	}

	reader, err := s.storage.Get(ctx, generation.ArchiveKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, generation, fmt.Errorf("%w: %s", ErrNotArchived, id)
		}
		s.logger.WithError(err).WithField("key", generation.ArchiveKey).Error("Ошибка получения файла из архива")
		return nil, generation, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return reader, generation, nil
}

// ExportGenerations выгружает всю историю, подходящую под фильтр, в xlsx
func (s *GenerationService) ExportGenerations(ctx context.Context, w io.Writer, params history.ListParams) error {
	params.Page = 1
	params.PageSize = exportPageSize

	var all []models.Generation
	for {
		page, total, err := s.history.List(ctx, params)
		if err != nil {
			return fmt.Errorf("ошибка получения истории генераций: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			break
		}
		params.Page++
	}

	return history.ExportXLSX(w, all)
}

func (s *GenerationService) saveRecord(ctx context.Context, logger *logrus.Entry, generation *models.Generation) {
	// запись сохраняется даже если клиент уже отключился
	if err := s.history.Save(context.WithoutCancel(ctx), generation); err != nil {
		logger.WithError(err).Error("Ошибка обновления записи о генерации")
	}
}
