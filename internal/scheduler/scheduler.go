package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/NewsDigest/internal/cache"
	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/enricher"
	"github.com/LJTian/NewsDigest/internal/llm"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// ErrRunning 上一轮尚未结束时再次触发
var ErrRunning = errors.New("scheduler: pipeline already running")

type EntryCollector interface {
	Collect(ctx context.Context, sources []collector.Source) []collector.FeedEntry
}

type ArticleEnricher interface {
	Enrich(ctx context.Context, candidates []processor.Candidate) []enricher.Article
}

type ArticleSaver interface {
	SaveArticles(ctx context.Context, articles []enricher.Article) error
}

// Pipeline 一轮完整的处理：采集 → 分类 → 补全正文 → 入库 → 持久化缓存 → 摘要
type Pipeline struct {
	Collector  EntryCollector
	Sources    []collector.Source
	Classifier *processor.Classifier
	Enricher   ArticleEnricher
	Cache      cache.Store

	// 以下可选
	Saver     ArticleSaver
	Generator llm.Generator
	Topics    []string
	Now       func() time.Time

	running atomic.Bool
}

// Report 一轮运行的统计
type Report struct {
	StartedAt  time.Time             `json:"startedAt"`
	Duration   time.Duration         `json:"duration"`
	Entries    int                   `json:"entries"`
	Candidates int                   `json:"candidates"`
	Articles   []enricher.Article    `json:"-"`
	Outcomes   map[cache.Outcome]int `json:"outcomes"`
	Saved      int                   `json:"saved"`
	Digest     []llm.TopicSummary    `json:"-"`
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run 执行一轮；入库或缓存落盘失败会返回错误，但已经得到的结果仍在 Report 中
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunning
	}
	defer p.running.Store(false)

	rep := Report{StartedAt: p.now()}
	log.Println("start pipeline run...")

	entries := p.Collector.Collect(ctx, p.Sources)
	rep.Entries = len(entries)

	candidates := p.Classifier.Process(entries, rep.StartedAt)
	rep.Candidates = len(candidates)
	log.Printf("collected %d entries, %d candidates", rep.Entries, rep.Candidates)

	rep.Articles = p.Enricher.Enrich(ctx, candidates)
	rep.Outcomes = enricher.Stats(rep.Articles)

	var errs []error
	if p.Saver != nil && len(rep.Articles) > 0 {
		if err := p.Saver.SaveArticles(ctx, rep.Articles); err != nil {
			log.Printf("save articles error: %v", err)
			errs = append(errs, err)
		} else {
			rep.Saved = len(rep.Articles)
		}
	}

	if f, ok := p.Cache.(cache.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			log.Printf("flush fetch cache error: %v", err)
			errs = append(errs, fmt.Errorf("scheduler: flush cache: %w", err))
		}
	}

	if p.Generator != nil {
		rep.Digest = llm.Digest(ctx, p.Generator, p.byTopic(rep.Articles))
	}

	rep.Duration = p.now().Sub(rep.StartedAt)
	log.Printf("pipeline run done, articles=%d fetched=%d not_modified=%d failed=%d saved=%d",
		len(rep.Articles),
		rep.Outcomes[cache.OutcomeFetched],
		rep.Outcomes[cache.OutcomeNotModified],
		rep.Outcomes[cache.OutcomeFailed],
		rep.Saved)
	return rep, errors.Join(errs...)
}

// byTopic 配置中的主题即使没有文章也参与摘要
func (p *Pipeline) byTopic(articles []enricher.Article) map[string][]enricher.Article {
	groups := enricher.GroupByTopic(articles)
	for _, t := range p.Topics {
		if _, ok := groups[t]; !ok {
			groups[t] = nil
		}
	}
	return groups
}

type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
}

func New(spec string, p *Pipeline) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))

	s := &Scheduler{
		cron:     c,
		pipeline: p,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Cron 暴露底层 cron，便于追加其它定时任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	return s.pipeline.Run(ctx)
}

func (s *Scheduler) runOnce() {
	if _, err := s.pipeline.Run(context.Background()); err != nil {
		log.Printf("scheduled run error: %v", err)
	}
}
