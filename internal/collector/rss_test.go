package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Test Feed</title>
%s
</channel>
</rss>`

func rssItem(title, link, pubDate, desc string) string {
	date := ""
	if pubDate != "" {
		date = "<pubDate>" + pubDate + "</pubDate>"
	}
	return fmt.Sprintf("<item><title>%s</title><link>%s</link>%s<description>%s</description></item>", title, link, date, desc)
}

func newFeedServer(t *testing.T, items ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, rssTemplate, strings.Join(items, "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type countingGate struct{ calls []string }

func (g *countingGate) Wait(_ context.Context, rawURL string) error {
	g.calls = append(g.calls, rawURL)
	return nil
}

func TestRSSFetcherParsesEntries(t *testing.T) {
	pub := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	srv := newFeedServer(t,
		rssItem("New LLM model released", "https://example.com/a", pub.Format(time.RFC1123Z), "machine learning breakthrough"),
		rssItem("No date", "https://example.com/b", "", "summary b"),
		rssItem("No link", "", pub.Format(time.RFC1123Z), "dropped"),
	)

	f := NewRSSFetcher("ai", srv.URL, 20, srv.Client(), "test-agent")
	entries, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "ai", entries[0].Topic)
	assert.Equal(t, "New LLM model released", entries[0].Title)
	assert.Equal(t, "https://example.com/a", entries[0].Link)
	assert.Equal(t, "machine learning breakthrough", entries[0].Summary)
	assert.True(t, pub.Equal(entries[0].PublishedAt), "PublishedAt = %v", entries[0].PublishedAt)
	assert.Equal(t, srv.URL, entries[0].FeedURL)

	// 没有日期的条目保留下来，由分类器决定排除
	assert.True(t, entries[1].PublishedAt.IsZero())
}

func TestRSSFetcherCapsEntries(t *testing.T) {
	var items []string
	for i := 0; i < 30; i++ {
		items = append(items, rssItem(fmt.Sprintf("t%d", i), fmt.Sprintf("https://example.com/%d", i), "", ""))
	}
	srv := newFeedServer(t, items...)

	entries, err := NewRSSFetcher("ai", srv.URL, 20, srv.Client(), "").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 20)
	assert.Equal(t, "https://example.com/0", entries[0].Link)
}

func TestCollectIsolatesFailingFeed(t *testing.T) {
	good := newFeedServer(t, rssItem("ok", "https://example.com/ok", "", ""))
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	gate := &countingGate{}
	c := NewCollector(time.Second, "test-agent", 20, gate)
	sources := c.Sources(map[string][]string{
		"cybersecurity": {good.URL},
		"ai":            {bad.URL, good.URL},
	})
	require.Len(t, sources, 3)

	entries := c.Collect(context.Background(), sources)
	require.Len(t, entries, 2)
	// 主题按名称排序：ai 在前
	assert.Equal(t, "ai", entries[0].Topic)
	assert.Equal(t, "cybersecurity", entries[1].Topic)
	assert.Equal(t, []string{bad.URL, good.URL, good.URL}, gate.calls)
}
