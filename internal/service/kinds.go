package service

import (
	"errors"
	"fmt"
	"strings"

	"jasper_srv/internal/jasper"
	"jasper_srv/internal/models"
	"jasper_srv/internal/storage"
)

// Виды ошибок, сохраняемые в истории и используемые HTTP слоем
const (
	KindMissingParameters = "missing_parameters"
	KindInvalidInput      = "invalid_input"
	KindInvalidFormat     = "invalid_format"
	KindUnsupported       = "unsupported"
	KindNotFound          = "not_found"
	KindPermissionDenied  = "permission_denied"
	KindExecutionDisabled = "execution_disabled"
	KindProcessFailed     = "process_failed"
	KindIO                = "io"
	KindInternal          = "internal"
)

// ErrorKind классифицирует ошибку генерации
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	// MissingParametersError оборачивает ProcessError, поэтому проверяется первым
	case errors.Is(err, jasper.ErrMissingParameters):
		return KindMissingParameters
	case errors.Is(err, jasper.ErrInvalidFormat):
		return KindInvalidFormat
	case errors.Is(err, jasper.ErrInvalidInput), errors.Is(err, storage.ErrInvalidKey):
		return KindInvalidInput
	case errors.Is(err, jasper.ErrUnsupportedOperation):
		return KindUnsupported
	case errors.Is(err, jasper.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, jasper.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, jasper.ErrExecutionDisabled):
		return KindExecutionDisabled
	case errors.Is(err, jasper.ErrProcessFailed):
		return KindProcessFailed
	case errors.Is(err, jasper.ErrIO):
		return KindIO
	default:
		return KindInternal
	}
}

var contentTypes = map[string]string{
	"pdf":     "application/pdf",
	"rtf":     "application/rtf",
	"xls":     "application/vnd.ms-excel",
	"xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"docx":    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"odt":     "application/vnd.oasis.opendocument.text",
	"ods":     "application/vnd.oasis.opendocument.spreadsheet",
	"pptx":    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"csv":     "text/csv; charset=utf-8",
	"html":    "text/html; charset=utf-8",
	"xhtml":   "application/xhtml+xml",
	"xml":     "application/xml",
	"jrprint": "application/octet-stream",
}

// ContentType возвращает MIME тип для формата jasperstarter
func ContentType(format string) string {
	if ct, ok := contentTypes[strings.ToLower(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Filename имя файла для скачивания
func Filename(g *models.Generation) string {
	return fmt.Sprintf("%s_%s.%s", g.Report, g.CreatedAt.Format("20060102_150405"), g.Format)
}
