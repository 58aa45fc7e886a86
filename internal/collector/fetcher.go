package collector

import (
	"context"
	"time"
)

// FeedEntry 订阅源解析后的一条记录，解析后立即交给分类器
type FeedEntry struct {
	Topic string
	Title string
	// Link 作为抓取缓存的键
	Link string
	// Published 保留订阅源里的原始日期文本；PublishedAt 为零值表示订阅源未给出可解析的日期
	Published   string
	PublishedAt time.Time
	Summary     string
	FeedURL     string
}

// Source 抽象每一个订阅源
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]FeedEntry, error)
}
