package enricher

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LJTian/NewsDigest/internal/cache"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// Article 最终输出：正文为空仅当从未抓取成功且订阅源摘要也为空
type Article struct {
	Topic       string
	Title       string
	Link        string
	Published   string
	PublishedAt time.Time
	Body        string

	Outcome cache.Outcome
	Matched []string
}

// Resolver 见 cache.Resolver
type Resolver interface {
	Resolve(ctx context.Context, url string, prev *cache.Record) cache.Result
}

// Waiter 见 throttle.Gate
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

type Options struct {
	// Workers 并发抓取数，1 即逐条顺序处理
	Workers int
	Policy  cache.NoTokenPolicy
}

// Enricher 逐条为候选条目抓取正文，维护 URL → 缓存记录
type Enricher struct {
	store    cache.Store
	resolver Resolver
	gate     Waiter
	workers  int
	policy   cache.NoTokenPolicy
	locks    *keyedMutex
}

func New(store cache.Store, resolver Resolver, gate Waiter, opts Options) *Enricher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Policy == "" {
		opts.Policy = cache.PolicyRefetch
	}
	return &Enricher{
		store:    store,
		resolver: resolver,
		gate:     gate,
		workers:  opts.Workers,
		policy:   opts.Policy,
		locks:    newKeyedMutex(),
	}
}

// Enrich 输出与输入一一对应、顺序一致；单条失败只会退回到缓存正文或摘要，不会中断整批
func (e *Enricher) Enrich(ctx context.Context, candidates []processor.Candidate) []Article {
	out := make([]Article, len(candidates))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, c := range candidates {
		g.Go(func() error {
			out[i] = e.enrichOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (e *Enricher) enrichOne(ctx context.Context, c processor.Candidate) Article {
	// 同一 URL 的读取、抓取与写回串行执行，不同主题下的重复链接共享一条记录
	unlock := e.locks.Lock(c.Link)
	defer unlock()

	var prev *cache.Record
	rec, ok, err := e.store.Get(ctx, c.Link)
	if err != nil {
		log.Printf("enrich %s: read cache: %v", c.Link, err)
	} else if ok {
		prev = &rec
	}

	var res cache.Result
	if err := e.wait(ctx, c.Link); err != nil {
		log.Printf("enrich %s: throttle: %v", c.Link, err)
		res = cache.Result{Outcome: cache.OutcomeFailed, Err: err}
	} else {
		res = e.resolver.Resolve(ctx, c.Link, prev)
	}

	if next, write := cache.Merge(prev, res, e.policy); write {
		if err := e.store.Put(ctx, c.Link, next); err != nil {
			log.Printf("enrich %s: write cache: %v", c.Link, err)
		}
	}

	return Article{
		Topic:       c.Topic,
		Title:       c.Title,
		Link:        c.Link,
		Published:   c.Published,
		PublishedAt: c.PublishedAt,
		Body:        cache.Body(res, prev, c.Summary),
		Outcome:     res.Outcome,
		Matched:     c.Matched,
	}
}

func (e *Enricher) wait(ctx context.Context, link string) error {
	if e.gate == nil {
		return nil
	}
	return e.gate.Wait(ctx, link)
}

// GroupByTopic 按主题分组，组内保持原有顺序
func GroupByTopic(articles []Article) map[string][]Article {
	out := make(map[string][]Article)
	for _, a := range articles {
		out[a.Topic] = append(out[a.Topic], a)
	}
	return out
}

// Stats 统计各抓取结果的数量
func Stats(articles []Article) map[cache.Outcome]int {
	out := make(map[cache.Outcome]int, 3)
	for _, a := range articles {
		out[a.Outcome]++
	}
	return out
}
