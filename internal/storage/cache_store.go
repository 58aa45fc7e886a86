package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/NewsDigest/internal/cache"
)

// CacheEntry 条件抓取缓存的数据库表示
type CacheEntry struct {
	URL   string `gorm:"primaryKey;size:2048"`
	Token string `gorm:"size:128"`
	Body  string `gorm:"type:text"`

	UpdatedAt time.Time
}

func (CacheEntry) TableName() string {
	return "fetch_cache"
}

// PostgresCacheStore 跨多次运行保留的缓存，写入为整行 upsert
type PostgresCacheStore struct {
	db *gorm.DB
}

func NewPostgresCacheStore(db *gorm.DB) *PostgresCacheStore {
	return &PostgresCacheStore{db: db}
}

func (p *PostgresCacheStore) Get(ctx context.Context, url string) (cache.Record, bool, error) {
	var e CacheEntry
	err := p.db.WithContext(ctx).Where("url = ?", url).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Record{}, false, nil
	}
	if err != nil {
		return cache.Record{}, false, fmt.Errorf("storage: get cache %s: %w", url, err)
	}
	return cache.Record{Token: e.Token, Body: e.Body}, true, nil
}

func (p *PostgresCacheStore) Put(ctx context.Context, url string, rec cache.Record) error {
	e := CacheEntry{URL: url, Token: rec.Token, Body: toValidUTF8(rec.Body)}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "body", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("storage: put cache %s: %w", url, err)
	}
	return nil
}

const cacheKeyPrefix = "fetchcache:"

// RedisCacheStore 每个 URL 一个 hash（token / body），不设过期时间
type RedisCacheStore struct {
	rdb *redis.Client
}

func NewRedisCacheStore(rdb *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{rdb: rdb}
}

func (r *RedisCacheStore) Get(ctx context.Context, url string) (cache.Record, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, cacheKeyPrefix+url).Result()
	if err != nil {
		return cache.Record{}, false, fmt.Errorf("storage: get cache %s: %w", url, err)
	}
	if len(fields) == 0 {
		return cache.Record{}, false, nil
	}
	return cache.Record{Token: fields["token"], Body: fields["body"]}, true, nil
}

// Put 一条 HSET 同时写入两个字段，保证记录整体替换
func (r *RedisCacheStore) Put(ctx context.Context, url string, rec cache.Record) error {
	if err := r.rdb.HSet(ctx, cacheKeyPrefix+url, "token", rec.Token, "body", rec.Body).Err(); err != nil {
		return fmt.Errorf("storage: put cache %s: %w", url, err)
	}
	return nil
}
