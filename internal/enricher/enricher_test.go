package enricher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/NewsDigest/internal/cache"
	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/extractor"
	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/LJTian/NewsDigest/internal/throttle"
)

func candidate(topic, link, summary string) processor.Candidate {
	return processor.Candidate{FeedEntry: collector.FeedEntry{
		Topic:       topic,
		Title:       "title " + link,
		Link:        link,
		Summary:     summary,
		PublishedAt: time.Now(),
	}}
}

// fakeResolver 按 URL 返回预设结果，并记录同一 URL 的并发数
type fakeResolver struct {
	mu       sync.Mutex
	results  map[string]cache.Result
	inflight map[string]int
	maxSeen  map[string]int
	prevs    map[string][]*cache.Record
	jitter   bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		results:  make(map[string]cache.Result),
		inflight: make(map[string]int),
		maxSeen:  make(map[string]int),
		prevs:    make(map[string][]*cache.Record),
	}
}

func (f *fakeResolver) Resolve(_ context.Context, url string, prev *cache.Record) cache.Result {
	f.mu.Lock()
	f.inflight[url]++
	if f.inflight[url] > f.maxSeen[url] {
		f.maxSeen[url] = f.inflight[url]
	}
	f.prevs[url] = append(f.prevs[url], prev)
	res, ok := f.results[url]
	f.mu.Unlock()

	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}

	f.mu.Lock()
	f.inflight[url]--
	f.mu.Unlock()

	if !ok {
		return cache.Result{Outcome: cache.OutcomeFailed, Err: errors.New("no such page")}
	}
	return res
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (cache.Record, bool, error) {
	return cache.Record{}, false, errors.New("store down")
}

func (failingStore) Put(context.Context, string, cache.Record) error {
	return errors.New("store down")
}

func TestEnrichFallbackChain(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "https://example.com/cached", cache.Record{Token: "T", Body: "cached body"}))

	r := newFakeResolver()
	r.results["https://example.com/fresh"] = cache.Result{Outcome: cache.OutcomeFetched, Body: "fresh body", Token: "T1"}

	e := New(store, r, nil, Options{})
	out := e.Enrich(ctx, []processor.Candidate{
		candidate("ai", "https://example.com/fresh", "summary"),
		candidate("ai", "https://example.com/cached", "ignored summary"),
		candidate("ai", "https://example.com/missing", "feed summary"),
		candidate("ai", "https://example.com/empty", ""),
	})

	require.Len(t, out, 4)
	assert.Equal(t, "fresh body", out[0].Body)
	assert.Equal(t, cache.OutcomeFetched, out[0].Outcome)
	assert.Equal(t, "cached body", out[1].Body)
	assert.Equal(t, cache.OutcomeFailed, out[1].Outcome)
	assert.Equal(t, "feed summary", out[2].Body)
	assert.Equal(t, "", out[3].Body)

	rec, ok, _ := store.Get(ctx, "https://example.com/fresh")
	require.True(t, ok)
	assert.Equal(t, cache.Record{Token: "T1", Body: "fresh body"}, rec)

	// 失败不写缓存
	_, ok, _ = store.Get(ctx, "https://example.com/missing")
	assert.False(t, ok)
	rec, _, _ = store.Get(ctx, "https://example.com/cached")
	assert.Equal(t, cache.Record{Token: "T", Body: "cached body"}, rec)
}

func TestEnrichPassesCachedRecordToResolver(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	prev := cache.Record{Token: "T1", Body: "B1"}
	require.NoError(t, store.Put(ctx, "https://example.com/a", prev))

	r := newFakeResolver()
	r.results["https://example.com/a"] = cache.Result{Outcome: cache.OutcomeNotModified}

	out := New(store, r, nil, Options{}).Enrich(ctx, []processor.Candidate{candidate("ai", "https://example.com/a", "s")})
	assert.Equal(t, "B1", out[0].Body)
	require.Len(t, r.prevs["https://example.com/a"], 1)
	assert.Equal(t, &prev, r.prevs["https://example.com/a"][0])
}

func TestEnrichPreservesOrderAndSerializesURLs(t *testing.T) {
	r := newFakeResolver()
	r.jitter = true

	var cands []processor.Candidate
	for i := 0; i < 60; i++ {
		// 每个 URL 在不同主题下出现多次
		link := fmt.Sprintf("https://example.com/%d", i%7)
		r.results[link] = cache.Result{Outcome: cache.OutcomeFetched, Body: "body " + link, Token: "T"}
		topic := []string{"ai", "cybersecurity", "blockchain"}[i%3]
		cands = append(cands, candidate(topic, link, ""))
	}

	e := New(cache.NewMemoryStore(), r, nil, Options{Workers: 8})
	out := e.Enrich(context.Background(), cands)

	require.Len(t, out, len(cands))
	for i := range cands {
		assert.Equal(t, cands[i].Link, out[i].Link)
		assert.Equal(t, cands[i].Topic, out[i].Topic)
		assert.Equal(t, "body "+cands[i].Link, out[i].Body)
	}
	for link, n := range r.maxSeen {
		assert.Equal(t, 1, n, "concurrent fetches for %s", link)
	}
}

func TestEnrichSurvivesStoreErrors(t *testing.T) {
	r := newFakeResolver()
	r.results["https://example.com/a"] = cache.Result{Outcome: cache.OutcomeFetched, Body: "fresh", Token: "T"}

	out := New(failingStore{}, r, nil, Options{}).Enrich(context.Background(), []processor.Candidate{
		candidate("ai", "https://example.com/a", "s"),
		candidate("ai", "https://example.com/b", "summary b"),
	})
	assert.Equal(t, "fresh", out[0].Body)
	assert.Equal(t, "summary b", out[1].Body)
}

func TestEnrichThrottleFailureFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newFakeResolver()
	r.results["https://example.com/a"] = cache.Result{Outcome: cache.OutcomeFetched, Body: "fresh"}

	gate := throttle.New(throttle.ModeGlobal, time.Hour)
	out := New(cache.NewMemoryStore(), r, gate, Options{}).Enrich(ctx, []processor.Candidate{
		candidate("ai", "https://example.com/a", "summary"),
	})
	assert.Equal(t, cache.OutcomeFailed, out[0].Outcome)
	assert.Equal(t, "summary", out[0].Body)
}

func TestEnrichEndToEndConditionalFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-Modified-Since") == "T1" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Last-Modified", "T1")
		fmt.Fprint(w, "<html><body><article>B1</article></body></html>")
	}))
	defer srv.Close()

	ctx := context.Background()
	store := cache.NewMemoryStore()
	resolver := cache.NewResolver(time.Second, "test-agent", extractor.NewSelectorExtractor(500))
	e := New(store, resolver, throttle.New(throttle.ModeGlobal, time.Millisecond), Options{})

	link := srv.URL + "/a"
	first := e.Enrich(ctx, []processor.Candidate{candidate("ai", link, "summary")})
	assert.Equal(t, "B1", first[0].Body)
	assert.Equal(t, cache.OutcomeFetched, first[0].Outcome)

	second := e.Enrich(ctx, []processor.Candidate{candidate("ai", link, "summary")})
	assert.Equal(t, "B1", second[0].Body)
	assert.Equal(t, cache.OutcomeNotModified, second[0].Outcome)

	rec, ok, _ := store.Get(ctx, link)
	require.True(t, ok)
	assert.Equal(t, cache.Record{Token: "T1", Body: "B1"}, rec)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGroupByTopicAndStats(t *testing.T) {
	articles := []Article{
		{Topic: "ai", Link: "1", Outcome: cache.OutcomeFetched},
		{Topic: "blockchain", Link: "2", Outcome: cache.OutcomeFailed},
		{Topic: "ai", Link: "3", Outcome: cache.OutcomeFetched},
	}
	groups := GroupByTopic(articles)
	require.Len(t, groups["ai"], 2)
	assert.Equal(t, "3", groups["ai"][1].Link)

	stats := Stats(articles)
	assert.Equal(t, 2, stats[cache.OutcomeFetched])
	assert.Equal(t, 1, stats[cache.OutcomeFailed])
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
