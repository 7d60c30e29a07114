package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"jasper_srv/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Save(ctx context.Context, key string, reader io.Reader) error {
	args := m.Called(ctx, key, reader)
	return args.Error(0)
}

func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) JoinPath(elem ...string) string {
	return strings.Join(elem, "/")
}

func setupTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStorageOnFs(afero.NewMemMapFs(), 0o755, setupTestLogger())
	key := s.JoinPath("reports", "invoice", "abc.pdf")
	assert.Equal(t, "reports/invoice/abc.pdf", key)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, key, strings.NewReader("%PDF-1.4")))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", readAll(t, rc))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is not an error")

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewLocalStorageOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: dir}, setupTestLogger())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "a/b.txt", strings.NewReader("hello")))
	assert.FileExists(t, dir+"/a/b.txt")

	_, err = NewLocalStorage(LocalConfig{}, setupTestLogger())
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("reports/invoice/1.pdf"))
	assert.NoError(t, ValidateKey("reports/a..b.pdf"))
	assert.ErrorIs(t, ValidateKey(""), ErrInvalidKey)
	assert.ErrorIs(t, ValidateKey("reports/../etc/passwd"), ErrInvalidKey)
	assert.ErrorIs(t, ValidateKey(strings.Repeat("k", maxKeyLength+1)), ErrInvalidKey)
}

func TestValidationMiddlewareBlocksBadKeys(t *testing.T) {
	inner := new(MockStorage)
	s := NewValidationMiddleware(inner)

	err := s.Save(context.Background(), "../x", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	inner.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	inner.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestRetryMiddlewareRetriesTransientErrors(t *testing.T) {
	inner := new(MockStorage)
	transient := errors.New("connection reset")
	inner.On("Delete", mock.Anything, "k").Return(transient).Twice()
	inner.On("Delete", mock.Anything, "k").Return(nil).Once()

	s := NewRetryMiddleware(inner, 3, time.Millisecond, setupTestLogger())
	require.NoError(t, s.Delete(context.Background(), "k"))
	inner.AssertNumberOfCalls(t, "Delete", 3)
}

func TestRetryMiddlewareDoesNotRetryNotFound(t *testing.T) {
	inner := new(MockStorage)
	inner.On("Get", mock.Anything, "k").Return(nil, ErrNotFound)

	s := NewRetryMiddleware(inner, 3, time.Millisecond, setupTestLogger())
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
	inner.AssertNumberOfCalls(t, "Get", 1)
}

func TestRetryMiddlewareRewindsSeekableReaders(t *testing.T) {
	inner := new(MockStorage)
	var seen []string
	inner.On("Save", mock.Anything, "k", mock.Anything).Return(errors.New("timeout")).Once().Run(func(args mock.Arguments) {
		b, _ := io.ReadAll(args.Get(2).(io.Reader))
		seen = append(seen, string(b))
	})
	inner.On("Save", mock.Anything, "k", mock.Anything).Return(nil).Once().Run(func(args mock.Arguments) {
		b, _ := io.ReadAll(args.Get(2).(io.Reader))
		seen = append(seen, string(b))
	})

	s := NewRetryMiddleware(inner, 3, time.Millisecond, setupTestLogger())
	require.NoError(t, s.Save(context.Background(), "k", bytes.NewReader([]byte("payload"))))
	assert.Equal(t, []string{"payload", "payload"}, seen)
}

func TestRetryMiddlewareGivesUpOnStreams(t *testing.T) {
	inner := new(MockStorage)
	failure := errors.New("timeout")
	inner.On("Save", mock.Anything, "k", mock.Anything).Return(failure)

	s := NewRetryMiddleware(inner, 3, time.Millisecond, setupTestLogger())
	err := s.Save(context.Background(), "k", io.MultiReader(strings.NewReader("stream")))
	assert.ErrorIs(t, err, failure)
	inner.AssertNumberOfCalls(t, "Save", 1)
}

func TestBuilderLocal(t *testing.T) {
	cfg := config.Config{Storage: config.Storage{Type: StorageTypeLocal, BasePath: t.TempDir()}}
	s, err := NewStorageBuilder(cfg, setupTestLogger()).Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "x/y.pdf", strings.NewReader("data")))
	rc, err := s.Get(context.Background(), "x/y.pdf")
	require.NoError(t, err)
	assert.Equal(t, "data", readAll(t, rc))

	err = s.Save(context.Background(), "", strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestBuilderRejectsUnknownType(t *testing.T) {
	cfg := config.Config{Storage: config.Storage{Type: "ftp"}}
	_, err := NewStorageBuilder(cfg, setupTestLogger()).Build(context.Background())
	assert.ErrorContains(t, err, "ftp")
}
