package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoFeeds 表示配置中没有任何可用的订阅源
var ErrNoFeeds = errors.New("config: no feeds configured")

type Config struct {
	AppPort string
	// 为空表示不启用 Basic Auth
	BasicAuthUser string
	BasicAuthPass string

	PostgresDSN string
	RedisAddr   string

	CronSpec string

	// 订阅源与主题关键词
	FeedsFile string
	Topics    map[string]Topic

	RecencyWindow     time.Duration
	MinMatches        int
	MaxEntriesPerFeed int

	FetchTimeout time.Duration
	FetchDelay   time.Duration
	ThrottleMode string // global / host
	Workers      int
	UserAgent    string

	Extractor string // readability / selector
	MaxWords  int

	CacheBackend  string // memory / file / redis / postgres
	CacheFile     string
	NoTokenPolicy string // refetch / keep-body

	LogFile string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
}

// Topic 一个主题对应的订阅源与关键词
type Topic struct {
	Feeds    []string `yaml:"feeds" json:"feeds"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

var (
	dotenvOnce sync.Once
	dotenvErr  error
)

// loadDotEnv 只读取一次 .env，已存在的环境变量不被覆盖
func loadDotEnv() error {
	dotenvOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			dotenvErr = fmt.Errorf("config: load .env: %w", err)
		}
	})
	return dotenvErr
}

// LogFile 读取 .env 后返回 LOG_FILE，入口在 Load 之前据此初始化日志，
// 使 Load 打出的日志也写入日志文件
func LogFile() string {
	_ = loadDotEnv()
	return getEnv("LOG_FILE", "")
}

// Load 先尝试加载 .env，再从环境变量读取配置并校验；
// 返回错误即为配置错误，调用方应在开始抓取前退出
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		log.Printf("warn: %v", err)
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:      getEnv("CRON_SPEC", "0 7 * * *"),
		FeedsFile:     getEnv("FEEDS_FILE", "feeds.yaml"),
		ThrottleMode:  getEnv("THROTTLE_MODE", "global"),
		UserAgent:     getEnv("USER_AGENT", "NewsDigestBot/1.0"),
		Extractor:     getEnv("EXTRACTOR", "readability"),
		CacheBackend:  getEnv("CACHE_BACKEND", "file"),
		CacheFile:     getEnv("CACHE_FILE", "data/fetch_cache.json"),
		NoTokenPolicy: getEnv("NO_TOKEN_POLICY", "refetch"),
		LogFile:       getEnv("LOG_FILE", ""),
		LLMAPIKey:     getEnv("LLM_API_KEY", ""),
		LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
	}

	var err error
	if cfg.RecencyWindow, err = getDuration("RECENCY_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchDelay, err = getDuration("FETCH_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MinMatches, err = getInt("MIN_MATCHES", 2); err != nil {
		return nil, err
	}
	if cfg.MaxEntriesPerFeed, err = getInt("MAX_ENTRIES_PER_FEED", 20); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.MaxWords, err = getInt("MAX_WORDS", 500); err != nil {
		return nil, err
	}

	topics, err := LoadTopics(cfg.FeedsFile)
	if err != nil {
		return nil, err
	}
	cfg.Topics = topics

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("config loaded: topics=%s window=%s workers=%d cache=%s cron=%s",
		strings.Join(cfg.TopicNames(), ","), cfg.RecencyWindow, cfg.Workers, cfg.CacheBackend, cfg.CronSpec)
	return cfg, nil
}

// LoadTopics 读取订阅源文件（YAML，兼容 JSON），格式：
//
//	ai:
//	  feeds: [https://example.com/rss]
//	  keywords: [LLM, machine learning]
//
// 也兼容旧的 feeds.json 结构 {"ai": ["https://..."]}，此时关键词使用内置默认值
func LoadTopics(path string) (map[string]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read feeds file %s: %w", path, err)
	}

	topics := make(map[string]Topic)
	var full map[string]Topic
	if err := yaml.Unmarshal(data, &full); err == nil {
		topics = full
	} else {
		var plain map[string][]string
		if err2 := yaml.Unmarshal(data, &plain); err2 != nil {
			return nil, fmt.Errorf("config: parse feeds file %s: %w", filepath.Base(path), errors.Join(err, err2))
		}
		for name, feeds := range plain {
			topics[name] = Topic{Feeds: feeds}
		}
	}

	for name, t := range topics {
		if len(t.Keywords) == 0 {
			t.Keywords = DefaultKeywords[name]
		}
		topics[name] = t
	}
	return topics, nil
}

// Validate 检查运行所必需的配置
func (c *Config) Validate() error {
	feeds := 0
	for name, t := range c.Topics {
		if len(t.Feeds) > 0 && len(t.Keywords) == 0 {
			return fmt.Errorf("config: topic %q has feeds but no keywords", name)
		}
		feeds += len(t.Feeds)
	}
	if feeds == 0 {
		return ErrNoFeeds
	}
	if c.RecencyWindow <= 0 {
		return fmt.Errorf("config: RECENCY_WINDOW must be > 0, got %s", c.RecencyWindow)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("config: FETCH_TIMEOUT must be > 0, got %s", c.FetchTimeout)
	}
	if c.FetchDelay < 0 {
		return fmt.Errorf("config: FETCH_DELAY must be >= 0, got %s", c.FetchDelay)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: WORKERS must be > 0, got %d", c.Workers)
	}
	if c.MinMatches <= 0 || c.MaxWords <= 0 || c.MaxEntriesPerFeed <= 0 {
		return errors.New("config: MIN_MATCHES, MAX_WORDS and MAX_ENTRIES_PER_FEED must be > 0")
	}
	switch c.CacheBackend {
	case "memory", "file", "redis", "postgres":
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.CacheBackend == "postgres" && c.PostgresDSN == "" {
		return errors.New("config: CACHE_BACKEND=postgres requires POSTGRES_DSN")
	}
	if c.CacheBackend == "redis" && c.RedisAddr == "" {
		return errors.New("config: CACHE_BACKEND=redis requires REDIS_ADDR")
	}
	switch c.ThrottleMode {
	case "global", "host":
	default:
		return fmt.Errorf("config: unknown THROTTLE_MODE %q", c.ThrottleMode)
	}
	switch c.NoTokenPolicy {
	case "refetch", "keep-body":
	default:
		return fmt.Errorf("config: unknown NO_TOKEN_POLICY %q", c.NoTokenPolicy)
	}
	switch c.Extractor {
	case "readability", "selector":
	default:
		return fmt.Errorf("config: unknown EXTRACTOR %q", c.Extractor)
	}
	return nil
}

// TopicNames 返回排序后的主题名，保证每次运行的处理顺序一致
func (c *Config) TopicNames() []string {
	names := make([]string, 0, len(c.Topics))
	for name := range c.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Feeds 返回 topic → 订阅源 URL 列表
func (c *Config) Feeds() map[string][]string {
	out := make(map[string][]string, len(c.Topics))
	for name, t := range c.Topics {
		if len(t.Feeds) > 0 {
			out[name] = t.Feeds
		}
	}
	return out
}

// Keywords 返回 topic → 关键词列表
func (c *Config) Keywords() map[string][]string {
	out := make(map[string][]string, len(c.Topics))
	for name, t := range c.Topics {
		out[name] = t.Keywords
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// Now 流水线判断时效窗口所用的当前时间（UTC）
func Now() time.Time {
	return time.Now().UTC()
}
