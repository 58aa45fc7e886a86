package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/NewsDigest/internal/enricher"
)

// 列表缓存时间，抓取频率很低，短 TTL 足够
const listCacheTTL = 5 * time.Minute

// ArticleRecord 一篇抓取完成的文章
type ArticleRecord struct {
	ID          string            `gorm:"primaryKey;size:40" json:"id"`
	Topic       string            `gorm:"size:64;index" json:"topic"`
	Title       string            `gorm:"size:512" json:"title"`
	URL         string            `gorm:"size:1024;index" json:"url"`
	Published   string            `gorm:"size:128" json:"published"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	Body        string            `gorm:"type:text" json:"body"`
	Meta        datatypes.JSONMap `gorm:"type:jsonb" json:"meta"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ArticleRecord) TableName() string {
	return "articles"
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ArticleRecord{}, &CacheEntry{}); err != nil {
		return nil, err
	}

	return &Store{DB: db, Redis: NewRedisClient(redisAddr)}, nil
}

// NewRedisClient 创建 Redis 客户端；Ping 失败只告警，Redis 仅作缓存
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}
	return rdb
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// articleID 同一链接在不同主题下是不同的文章
func articleID(topic, url string) string {
	h := sha1.New()
	h.Write([]byte(topic + "\n" + url))
	return hex.EncodeToString(h.Sum(nil))
}

// ToRecord 将 enricher.Article 转成数据库记录
func ToRecord(a enricher.Article) ArticleRecord {
	matched := make([]any, 0, len(a.Matched))
	for _, m := range a.Matched {
		matched = append(matched, m)
	}
	return ArticleRecord{
		ID:          articleID(a.Topic, a.Link),
		Topic:       a.Topic,
		Title:       toValidUTF8(a.Title),
		URL:         a.Link,
		Published:   a.Published,
		PublishedAt: a.PublishedAt,
		Body:        toValidUTF8(a.Body),
		Meta: datatypes.JSONMap{
			"outcome": string(a.Outcome),
			"matched": matched,
		},
	}
}

// SaveArticles 按 (topic, url) 幂等写入，已存在时更新正文等字段
func (s *Store) SaveArticles(ctx context.Context, articles []enricher.Article) error {
	if len(articles) == 0 {
		return nil
	}
	// 同一批次内重复的 (topic, url) 只保留最后一次的结果
	records := make([]ArticleRecord, 0, len(articles))
	index := make(map[string]int, len(articles))
	for _, a := range articles {
		rec := ToRecord(a)
		if i, ok := index[rec.ID]; ok {
			records[i] = rec
			continue
		}
		index[rec.ID] = len(records)
		records = append(records, rec)
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "body", "published", "published_at", "meta", "updated_at"}),
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("storage: save articles: %w", err)
	}

	// 不做按 key 通配删除，依赖短 TTL 的缓存自然过期
	return nil
}

// ListArticles 按主题返回最新的文章，并使用 Redis 做简单缓存
// topic: 可为空，表示全部主题
func (s *Store) ListArticles(ctx context.Context, topic string, limit int) ([]ArticleRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	cacheKey := fmt.Sprintf("articles:list:%s:%d", topic, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []ArticleRecord
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []ArticleRecord
	db := s.DB.WithContext(ctx).Model(&ArticleRecord{})
	if topic != "" {
		db = db.Where("topic = ?", topic)
	}
	if err := db.Order("published_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// ListTopics 返回已有文章的主题
func (s *Store) ListTopics(ctx context.Context) ([]string, error) {
	var topics []string
	err := s.DB.WithContext(ctx).Model(&ArticleRecord{}).
		Distinct("topic").Order("topic").Pluck("topic", &topics).Error
	return topics, err
}
