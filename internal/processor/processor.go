package processor

import (
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/collector"
)

// 订阅源中常见的日期格式，gofeed 未能解析时再尝试一次
var publishedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Candidate 通过主题与时效过滤的条目，附带命中的关键词
type Candidate struct {
	collector.FeedEntry
	Matched []string
}

// Classifier 按主题关键词命中数与发布时间窗口过滤条目
type Classifier struct {
	Keywords   map[string][]string
	MinMatches int
	Window     time.Duration
}

func NewClassifier(keywords map[string][]string, minMatches int, window time.Duration) *Classifier {
	if minMatches <= 0 {
		minMatches = 2
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Classifier{Keywords: keywords, MinMatches: minMatches, Window: window}
}

// MatchedKeywords 返回出现在标题或摘要中的关键词（不区分大小写），每个关键词最多计一次
func MatchedKeywords(entry collector.FeedEntry, keywords []string) []string {
	title := strings.ToLower(entry.Title)
	summary := strings.ToLower(entry.Summary)

	var matched []string
	for _, kw := range keywords {
		k := strings.ToLower(kw)
		if k == "" {
			continue
		}
		if strings.Contains(title, k) || strings.Contains(summary, k) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// MatchCount 关键词命中数
func MatchCount(entry collector.FeedEntry, keywords []string) int {
	return len(MatchedKeywords(entry, keywords))
}

// PublishedTime 返回条目的发布时间；没有或无法解析时 ok 为 false
func PublishedTime(entry collector.FeedEntry) (time.Time, bool) {
	if !entry.PublishedAt.IsZero() {
		return entry.PublishedAt, true
	}
	raw := strings.TrimSpace(entry.Published)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Include 命中数达到阈值且发布时间在 [now-Window, ∞) 内才保留；
// 缺少有效发布时间直接排除，不视为错误
func (c *Classifier) Include(entry collector.FeedEntry, keywords []string, now time.Time) bool {
	_, _, ok := c.classify(entry, keywords, now)
	return ok
}

// classify 一次算出命中的关键词与发布时间，供 Include 与 Process 共用
func (c *Classifier) classify(entry collector.FeedEntry, keywords []string, now time.Time) ([]string, time.Time, bool) {
	matched := MatchedKeywords(entry, keywords)
	if len(matched) < c.MinMatches {
		return nil, time.Time{}, false
	}
	published, ok := PublishedTime(entry)
	if !ok || published.Before(now.Add(-c.Window)) {
		return nil, time.Time{}, false
	}
	return matched, published, true
}

// Process 过滤一批条目，保持输入顺序
func (c *Classifier) Process(entries []collector.FeedEntry, now time.Time) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		matched, published, ok := c.classify(e, c.Keywords[e.Topic], now)
		if !ok {
			continue
		}
		e.PublishedAt = published
		e.Title = strings.TrimSpace(e.Title)
		out = append(out, Candidate{FeedEntry: e, Matched: matched})
	}
	return out
}
