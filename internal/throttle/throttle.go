package throttle

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ModeGlobal = "global"
	ModeHost   = "host"
)

// Gate 对外部请求做固定间隔限流：global 模式下所有请求共用一个令牌桶，
// host 模式下每个站点独立限流。interval 为 0 时不做等待
type Gate struct {
	mode     string
	interval time.Duration

	global *rate.Limiter

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func New(mode string, interval time.Duration) *Gate {
	g := &Gate{
		mode:     mode,
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
	if interval > 0 && mode != ModeHost {
		g.global = rate.NewLimiter(rate.Every(interval), 1)
	}
	return g
}

// Wait 阻塞直到允许对 rawURL 发起下一次请求，或 ctx 结束
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	if g == nil || g.interval <= 0 {
		return nil
	}
	if g.global != nil {
		return g.global.Wait(ctx)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}
	return g.limiterFor(u.Host).Wait(ctx)
}

func (g *Gate) limiterFor(host string) *rate.Limiter {
	g.mu.RLock()
	l, ok := g.limiters[host]
	g.mu.RUnlock()
	if ok {
		return l
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Every(g.interval), 1)
	g.limiters[host] = l
	return l
}
