package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.Address = mr.Addr()

	client, err := InitClient(cfg)
	require.NoError(t, err)
	assert.Same(t, client, GetClient())

	require.NoError(t, Close())
	assert.Nil(t, GetClient())
	assert.NoError(t, Close(), "重复关闭")
}

func TestInitClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default().Redis
	cfg.Address = addr
	cfg.DialTimeout = 1

	_, err := InitClient(cfg)
	assert.Error(t, err)
}
