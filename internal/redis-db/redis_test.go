package redis_db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURLDockerStyle(t *testing.T) {
	opts, err := ParseRedisURL("redis:6379", false)
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Empty(t, opts.Password)
}

func TestParseRedisURLWithScheme(t *testing.T) {
	opts, err := ParseRedisURL("redis://localhost:6380/2", false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestParseRedisURLPasswordOnly(t *testing.T) {
	opts, err := ParseRedisURL("redis://s3cret@localhost:6379", false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := NewRedisClient([]string{mr.Addr()}, false)
	require.NoError(t, err)
	assert.NotNil(t, r.Client())
	assert.NotNil(t, r.MakeRedisClient())
}

func TestNewRedisClientEmpty(t *testing.T) {
	_, err := NewRedisClient(nil, false)
	assert.EqualError(t, err, "redis addresses list cannot be empty")
}
