package collector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Waiter 外部请求限流器，见 throttle.Gate
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RSSFetcher 抓取单个 RSS/Atom 订阅源，结果都归属于同一个主题
type RSSFetcher struct {
	Topic      string
	URL        string
	MaxEntries int

	parser *gofeed.Parser
}

func NewRSSFetcher(topic, feedURL string, maxEntries int, client *http.Client, userAgent string) *RSSFetcher {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &RSSFetcher{Topic: topic, URL: feedURL, MaxEntries: maxEntries, parser: parser}
}

func (f *RSSFetcher) Name() string {
	return f.Topic + ":" + f.URL
}

func (f *RSSFetcher) Fetch(ctx context.Context) ([]FeedEntry, error) {
	feed, err := f.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss: parse feed %s: %w", f.URL, err)
	}

	items := feed.Items
	if f.MaxEntries > 0 && len(items) > f.MaxEntries {
		items = items[:f.MaxEntries]
	}

	out := make([]FeedEntry, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		link := strings.TrimSpace(it.Link)
		if link == "" {
			continue
		}

		entry := FeedEntry{
			Topic:     f.Topic,
			Title:     strings.TrimSpace(it.Title),
			Link:      link,
			Published: it.Published,
			Summary:   it.Description,
			FeedURL:   f.URL,
		}
		if entry.Summary == "" {
			entry.Summary = it.Content
		}
		// 优先使用发布时间，其次更新时间；都没有时保持零值，交由分类器排除
		if it.PublishedParsed != nil {
			entry.PublishedAt = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			entry.PublishedAt = *it.UpdatedParsed
			if entry.Published == "" {
				entry.Published = it.Updated
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Collector 按主题依次抓取所有订阅源
type Collector struct {
	client     *http.Client
	userAgent  string
	maxEntries int
	gate       Waiter
}

func NewCollector(timeout time.Duration, userAgent string, maxEntries int, gate Waiter) *Collector {
	return &Collector{
		client:     &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		maxEntries: maxEntries,
		gate:       gate,
	}
}

// Sources 将 topic → 订阅源配置展开为 Source 列表：主题按名称排序，订阅源保持配置顺序
func (c *Collector) Sources(feeds map[string][]string) []Source {
	topics := make([]string, 0, len(feeds))
	for topic := range feeds {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var sources []Source
	for _, topic := range topics {
		for _, u := range feeds[topic] {
			sources = append(sources, NewRSSFetcher(topic, u, c.maxEntries, c.client, c.userAgent))
		}
	}
	return sources
}

// Collect 逐个抓取订阅源。单个订阅源失败只记录日志，不影响其它订阅源
func (c *Collector) Collect(ctx context.Context, sources []Source) []FeedEntry {
	var all []FeedEntry
	for _, s := range sources {
		if c.gate != nil {
			if err := c.gate.Wait(ctx, sourceURL(s)); err != nil {
				log.Printf("collect %s: throttle: %v", s.Name(), err)
				if ctx.Err() != nil {
					return all
				}
				continue
			}
		}

		entries, err := s.Fetch(ctx)
		if err != nil {
			log.Printf("collect %s error: %v", s.Name(), err)
			continue
		}
		log.Printf("collect %s got %d entries", s.Name(), len(entries))
		all = append(all, entries...)
	}
	return all
}

func sourceURL(s Source) string {
	if f, ok := s.(*RSSFetcher); ok {
		return f.URL
	}
	return s.Name()
}
