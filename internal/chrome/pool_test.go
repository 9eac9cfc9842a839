package chrome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paystubs/internal/utils"
)

func poolCfg(size int) utils.Config {
	var cfg utils.Config
	cfg.PDF.ChromePoolSize = size
	cfg.PDF.ChromePath = "/definitely/missing/chrome"
	cfg.PDF.TimeoutSecs = 1
	return cfg
}

func TestNewPool_RejectsZeroSize(t *testing.T) {
	_, err := NewPool(poolCfg(0))
	assert.Error(t, err)
}

func TestNewPool_BadUserDataDir(t *testing.T) {
	cfg := poolCfg(1)
	cfg.PDF.UserDataDir = "/dev/null/not-allowed"
	_, err := NewPool(cfg)
	assert.Error(t, err)
}

func TestPool_AcquireReleaseBookkeeping(t *testing.T) {
	pool, err := NewPool(poolCfg(2))
	assert.NoError(t, err)
	defer pool.Close()

	s := pool.Stats(1)
	assert.True(t, s.Enabled)
	assert.Equal(t, 2, s.Capacity)
	assert.Equal(t, 2, s.Idle)
	assert.Equal(t, 0, s.InUse)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tab, err := pool.Acquire(ctx)
	assert.NoError(t, err)

	s = pool.Stats(1)
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, 1, s.InUse)

	pool.Release(tab, nil)
	s = pool.Stats(1)
	assert.Equal(t, 2, s.Idle)
	assert.Equal(t, 0, s.InUse)
}

func TestPool_AcquireTimesOutWhenExhausted(t *testing.T) {
	pool, err := NewPool(poolCfg(1))
	assert.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tab, err := pool.Acquire(ctx)
	assert.NoError(t, err)
	defer pool.Release(tab, nil)

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	_, err = pool.Acquire(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ReleaseReplacesInterruptedTab(t *testing.T) {
	pool, err := NewPool(poolCfg(1))
	assert.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tab, err := pool.Acquire(ctx)
	assert.NoError(t, err)

	pool.Release(tab, errors.New("websocket: close 1006"))

	s := pool.Stats(1)
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, 0, s.InUse)
}

func TestPool_RestartAndClose(t *testing.T) {
	pool, err := NewPool(poolCfg(2))
	assert.NoError(t, err)

	assert.NoError(t, pool.Restart())
	s := pool.Stats(1)
	assert.Equal(t, 1, s.Restarts)
	assert.NotEmpty(t, s.LastRestart)
	assert.Equal(t, 2, s.Idle)

	pool.Close()
	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, pool.Restart(), ErrPoolClosed)
}

func TestIsSessionInterrupted(t *testing.T) {
	assert.False(t, IsSessionInterrupted(nil))
	assert.False(t, IsSessionInterrupted(errors.New("some render failure")))
	assert.True(t, IsSessionInterrupted(context.Canceled))
	assert.True(t, IsSessionInterrupted(errors.New("rpc error: session closed")))
	assert.True(t, IsSessionInterrupted(errors.New("target closed")))
	assert.True(t, IsSessionInterrupted(errors.New("websocket: close 1006 (abnormal closure)")))
}
