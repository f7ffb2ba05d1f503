package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recap/devmon/internal/monitor"
	"github.com/recap/devmon/internal/types"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunPass(ctx context.Context, opts monitor.PassOptions) (*types.Summary, error) {
	args := m.Called(ctx, opts)
	summary, _ := args.Get(0).(*types.Summary)
	return summary, args.Error(1)
}

func TestHandleRunsPass(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunPass", mock.Anything, monitor.PassOptions{}).Return(&types.Summary{PassID: "p1"}, nil)
	h := &handler{runner: runner, logger: zerolog.Nop()}

	summary, err := h.Handle(context.Background(), events.CloudWatchEvent{ID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", summary.PassID)
	runner.AssertExpectations(t)
}

func TestHandleDeviceDetail(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunPass", mock.Anything, monitor.PassOptions{DeviceKey: "cam-a"}).Return(&types.Summary{}, nil)
	h := &handler{runner: runner, logger: zerolog.Nop()}

	_, err := h.Handle(context.Background(), events.CloudWatchEvent{Detail: json.RawMessage(`{"device":"cam-a"}`)})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestHandleSkipsOverlap(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunPass", mock.Anything, mock.Anything).Return(nil, monitor.ErrPassInProgress)
	h := &handler{runner: runner, logger: zerolog.Nop()}

	summary, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	assert.NoError(t, err)
	assert.Nil(t, summary)
}

func TestHandlePropagatesFailure(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunPass", mock.Anything, mock.Anything).Return(nil, errors.New("fetch heartbeats: throttled"))
	h := &handler{runner: runner, logger: zerolog.Nop()}

	_, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	assert.ErrorContains(t, err, "throttled")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(configPathEnv, "")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	path := filepath.Join(t.TempDir(), "devmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o644))
	t.Setenv(configPathEnv, path)
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)

	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = loadConfig()
	assert.Error(t, err)
}
