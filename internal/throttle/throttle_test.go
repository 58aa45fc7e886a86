package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalGateSpacesRequests(t *testing.T) {
	g := New(ModeGlobal, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(ctx, "https://a.example.com/x"))
	}
	// 首次立即放行，之后每次至少间隔 interval
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHostGateIsolatesHosts(t *testing.T) {
	g := New(ModeHost, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// 不同站点各自拥有一个令牌，不会互相阻塞
	require.NoError(t, g.Wait(ctx, "https://a.example.com/1"))
	require.NoError(t, g.Wait(ctx, "https://b.example.com/1"))

	// 同一站点第二次请求需要等待一小时，应被 ctx 超时打断
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.Error(t, g.Wait(short, "https://a.example.com/2"))
}

func TestHostGateRejectsMissingHost(t *testing.T) {
	g := New(ModeHost, time.Millisecond)
	assert.Error(t, g.Wait(context.Background(), "/relative/path"))
}

func TestZeroIntervalDisablesGate(t *testing.T) {
	g := New(ModeGlobal, 0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background(), "https://a.example.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	var nilGate *Gate
	assert.NoError(t, nilGate.Wait(context.Background(), "https://a.example.com"))
}
