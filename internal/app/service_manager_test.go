package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Transport.Mode = "memory"
	cfg.Transport.ResolveIntervalMs = 1
	cfg.Transport.WritePacingMs = 0
	cfg.Device.Address = "AA:BB:CC:DD:EE:01"
	return &cfg
}

func TestServiceManager_MemoryMode(t *testing.T) {
	m := NewServiceManager(memoryConfig())
	require.NoError(t, m.Init())
	defer m.Shutdown()

	_, ok := m.Journal.(*storage.MemoryJournal)
	assert.True(t, ok)

	// 内存传输自动注册任意地址
	require.NoError(t, m.Gateway.SetScreen(context.Background(), "", true))
	status, err := m.Gateway.Status("")
	require.NoError(t, err)
	assert.True(t, status.Link.State.IsConnected())
}

func TestServiceManager_RedisJournal(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()

	m := NewServiceManager(cfg)
	require.NoError(t, m.Init())

	_, ok := m.Journal.(*storage.RedisJournal)
	require.True(t, ok)

	require.NoError(t, m.Gateway.SetBrightness(context.Background(), "", 40))
	last, err := m.Journal.Last(context.Background(), cfg.Device.Address)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "command", last.Kind)

	require.NoError(t, m.Shutdown())
}

func TestServiceManager_RedisFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr
	cfg.Redis.DialTimeout = 1

	m := NewServiceManager(cfg)
	require.NoError(t, m.Init())
	defer m.Shutdown()

	_, ok := m.Journal.(*storage.MemoryJournal)
	assert.True(t, ok)
}

func TestServiceManager_UnknownMode(t *testing.T) {
	cfg := memoryConfig()
	cfg.Transport.Mode = "serial"
	assert.Error(t, NewServiceManager(cfg).Init())
}
