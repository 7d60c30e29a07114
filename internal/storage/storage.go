package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	// Типы хранилищ
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"

	// Настройки retry
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	// Максимальная длина ключа объекта
	maxKeyLength = 1024
)

var (
	// ErrNotFound возвращается, если объекта с таким ключом нет
	ErrNotFound = errors.New("файл не найден")
	// ErrInvalidKey возвращается для пустых и небезопасных ключей
	ErrInvalidKey = errors.New("недопустимый ключ файла")
)

// Storage архив сгенерированных документов
type Storage interface {
	Save(ctx context.Context, key string, reader io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// JoinPath объединяет элементы ключа по правилам хранилища
	JoinPath(elem ...string) string
}

// readerSize возвращает размер данных, если он известен заранее
func readerSize(r io.Reader) int64 {
	if l, ok := r.(interface{ Len() int }); ok {
		return int64(l.Len())
	}
	return -1
}
