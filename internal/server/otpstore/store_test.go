package otpstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client)
}

func TestSetGetCode(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCode(ctx, "a@x.com", "123456", 300*time.Second))

	got, err := s.GetCode(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", got)
	assert.Equal(t, 300*time.Second, mr.TTL("otp:a@x.com"))

	require.NoError(t, s.SetCode(ctx, "a@x.com", "654321", 300*time.Second))
	got, err = s.GetCode(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "654321", got)
}

func TestGetCode_Expired(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCode(ctx, "a@x.com", "123456", 300*time.Second))
	mr.FastForward(301 * time.Second)

	_, err := s.GetCode(ctx, "a@x.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteCode(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCode(ctx, "a@x.com", "123456", time.Minute))
	require.NoError(t, s.DeleteCode(ctx, "a@x.com"))
	require.NoError(t, s.DeleteCode(ctx, "a@x.com"))

	_, err := s.GetCode(ctx, "a@x.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAttempts_NoTTL(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Attempts(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 3; i++ {
		n, err = s.IncrAttempts(ctx, "a@x.com")
		require.NoError(t, err)
		assert.EqualValues(t, i, n)
	}

	mr.FastForward(24 * time.Hour)

	n, err = s.Attempts(ctx, "a@x.com")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Zero(t, mr.TTL("otp_attempts:a@x.com"))

	require.NoError(t, s.DecrAttempts(ctx, "a@x.com"))
	n, err = s.Attempts(ctx, "a@x.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestReset(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCode(ctx, "a@x.com", "123456", time.Minute))
	_, err := s.IncrAttempts(ctx, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "a@x.com"))
	assert.False(t, mr.Exists("otp:a@x.com"))
	assert.False(t, mr.Exists("otp_attempts:a@x.com"))

	require.NoError(t, s.Reset(ctx, "never@x.com"))
}

func TestStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := New(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = s.GetCode(ctx, "a@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)

	_, err = s.Attempts(ctx, "a@x.com")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	_, err = NewClient("http://nope")
	assert.Error(t, err)
}
