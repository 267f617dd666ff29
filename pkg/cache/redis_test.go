package cache

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/pkg/config"
)

func TestNewRedisPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	client, err := NewRedis(context.Background(), config.RedisConfig{Host: host, Port: p})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := srv.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(srv.Addr())
	p, _ := strconv.Atoi(port)
	srv.Close()

	_, err := NewRedis(context.Background(), config.RedisConfig{Host: host, Port: p})
	require.Error(t, err)
}
