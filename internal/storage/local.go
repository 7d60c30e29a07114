package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// LocalConfig конфигурация локального хранилища
type LocalConfig struct {
	BasePath    string
	Permissions os.FileMode
}

// LocalStorage реализация локального файлового хранилища
type LocalStorage struct {
	fs          afero.Fs
	permissions os.FileMode
	logger      *logrus.Logger
}

// NewLocalStorage создает локальное хранилище в cfg.BasePath
func NewLocalStorage(cfg LocalConfig, logger *logrus.Logger) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("неверная конфигурация локального хранилища: базовый путь не может быть пустым")
	}
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("неверная конфигурация локального хранилища: %w", err)
	}
	if cfg.Permissions == 0 {
		cfg.Permissions = 0o755
	}
	if err := os.MkdirAll(base, cfg.Permissions); err != nil {
		return nil, fmt.Errorf("ошибка создания базовой директории: %w", err)
	}
	return NewLocalStorageOnFs(afero.NewBasePathFs(afero.NewOsFs(), base), cfg.Permissions, logger), nil
}

// NewLocalStorageOnFs создает хранилище поверх произвольной файловой системы
func NewLocalStorageOnFs(fsys afero.Fs, permissions os.FileMode, logger *logrus.Logger) *LocalStorage {
	return &LocalStorage{fs: fsys, permissions: permissions, logger: logger}
}

// Save сохраняет файл локально
func (l *LocalStorage) Save(ctx context.Context, key string, reader io.Reader) error {
	name := l.name(key)
	if err := l.fs.MkdirAll(filepath.Dir(name), l.permissions); err != nil {
		return fmt.Errorf("ошибка создания директории: %w", err)
	}

	file, err := l.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	return file.Close()
}

// Get получает файл локально
func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := l.fs.Open(l.name(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия файла: %w", err)
	}
	return file, nil
}

// Delete удаляет файл локально
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	err := l.fs.Remove(l.name(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	return nil
}

// Exists проверяет существование файла
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := afero.Exists(l.fs, l.name(key))
	if err != nil {
		return false, fmt.Errorf("ошибка проверки существования файла: %w", err)
	}
	return ok, nil
}

// JoinPath объединяет элементы пути
func (l *LocalStorage) JoinPath(elem ...string) string {
	return filepath.ToSlash(filepath.Join(elem...))
}

func (l *LocalStorage) name(key string) string {
	return filepath.Join(string(filepath.Separator), filepath.FromSlash(key))
}
