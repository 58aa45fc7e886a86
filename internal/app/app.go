package app

import (
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/NewsDigest/internal/cache"
	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/enricher"
	"github.com/LJTian/NewsDigest/internal/extractor"
	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/LJTian/NewsDigest/internal/throttle"
)

// App cmd/collect 与 cmd/api 共用的组装结果
type App struct {
	Pipeline *scheduler.Pipeline
	// Store 未配置 POSTGRES_DSN 时为 nil
	Store *storage.Store
	Cache cache.Store

	rdb *redis.Client
}

// Build 按配置组装整条流水线
func Build(cfg *config.Config) (*App, error) {
	a := &App{}

	if cfg.PostgresDSN != "" {
		st, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store = st
	}

	cs, err := a.cacheStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Cache = cs

	gate := throttle.New(cfg.ThrottleMode, cfg.FetchDelay)
	resolver := cache.NewResolver(cfg.FetchTimeout, cfg.UserAgent, extractor.New(cfg.Extractor, cfg.MaxWords))
	col := collector.NewCollector(cfg.FetchTimeout, cfg.UserAgent, cfg.MaxEntriesPerFeed, gate)

	p := &scheduler.Pipeline{
		Collector:  col,
		Sources:    col.Sources(cfg.Feeds()),
		Classifier: processor.NewClassifier(cfg.Keywords(), cfg.MinMatches, cfg.RecencyWindow),
		Enricher: enricher.New(cs, resolver, gate, enricher.Options{
			Workers: cfg.Workers,
			Policy:  cache.NoTokenPolicy(cfg.NoTokenPolicy),
		}),
		Cache:  cs,
		Topics: cfg.TopicNames(),
		Now:    config.Now,
	}
	if a.Store != nil {
		p.Saver = a.Store
	}
	if cfg.LLMAPIKey != "" {
		p.Generator = llm.NewOpenAIGenerator(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	} else {
		log.Println("LLM_API_KEY not set, digest disabled")
	}
	a.Pipeline = p
	return a, nil
}

func (a *App) cacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		rdb := a.redis()
		if rdb == nil {
			rdb = storage.NewRedisClient(cfg.RedisAddr)
			a.rdb = rdb
		}
		return storage.NewRedisCacheStore(rdb), nil
	case "postgres":
		if a.Store == nil {
			return nil, fmt.Errorf("cache backend postgres requires POSTGRES_DSN")
		}
		return storage.NewPostgresCacheStore(a.Store.DB), nil
	default:
		fs, err := cache.OpenFileStore(cfg.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("open cache file: %w", err)
		}
		log.Printf("fetch cache %s loaded, %d records", fs.Path(), fs.Len())
		return fs, nil
	}
}

func (a *App) redis() *redis.Client {
	if a.Store != nil && a.Store.Redis != nil {
		return a.Store.Redis
	}
	return a.rdb
}

// Close 释放 Redis 连接；gorm 连接池随进程退出
func (a *App) Close() {
	if rdb := a.redis(); rdb != nil {
		_ = rdb.Close()
	}
}
