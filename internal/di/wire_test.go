package di

import (
	"testing"

	"jasper_srv/internal/config"
	"jasper_srv/internal/server"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestModuleGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		Module,
		fx.Invoke(func(server.HTTPServer) {}),
	)
	require.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.Config{Logging: config.Logging{Level: "debug", Format: "json"}})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger(config.Config{Logging: config.Logging{Level: "loud"}})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
