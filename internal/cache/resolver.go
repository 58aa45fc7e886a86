package cache

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/LJTian/NewsDigest/internal/extractor"
)

// Outcome 一次条件抓取的结果类型
type Outcome string

const (
	OutcomeFetched     Outcome = "fetched"
	OutcomeNotModified Outcome = "notModified"
	OutcomeFailed      Outcome = "failed"
)

// Result 一次条件抓取的结果。NotModified / Failed 时 Body 为空
type Result struct {
	Body    string
	Outcome Outcome
	// Token 响应中的 Last-Modified，可能为空
	Token  string
	Status int
	Err    error
}

// Resolver 对文章 URL 发起条件请求并提取正文
type Resolver struct {
	base      *colly.Collector
	extractor extractor.Extractor
}

func NewResolver(timeout time.Duration, userAgent string, ext extractor.Extractor) *Resolver {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(timeout)
	return &Resolver{base: c, extractor: ext}
}

// Resolve 抓取 url。prev 非空且带有 Token 时附带 If-Modified-Since；
// 网络错误、超时以及除 2xx/304 以外的状态码都归为 OutcomeFailed，只记录日志不返回错误
func (r *Resolver) Resolve(ctx context.Context, url string, prev *Record) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	// Clone 共享底层 http client，但回调互相独立，便于并发调用
	c := r.base.Clone()

	var (
		res   = Result{Outcome: OutcomeFailed}
		page  []byte
		ctype string
	)

	c.OnRequest(func(req *colly.Request) {
		if prev != nil && prev.Token != "" {
			req.Headers.Set("If-Modified-Since", prev.Token)
		}
	})
	c.OnResponse(func(resp *colly.Response) {
		res.Status = resp.StatusCode
		res.Outcome = OutcomeFetched
		if resp.Headers != nil {
			res.Token = resp.Headers.Get("Last-Modified")
			ctype = resp.Headers.Get("Content-Type")
		}
		page = resp.Body
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			res.Status = resp.StatusCode
		}
		switch {
		case res.Status == http.StatusNotModified:
			res.Outcome = OutcomeNotModified
			return
		case res.Status > http.StatusOK && res.Status < http.StatusMultipleChoices:
			// colly 把 203 以上的 2xx 也当作错误回调
			res.Outcome = OutcomeFetched
			res.Token = resp.Headers.Get("Last-Modified")
			page = resp.Body
			ctype = resp.Headers.Get("Content-Type")
			return
		}
		res.Outcome = OutcomeFailed
		res.Err = err
	})

	// colly 的请求不接收 ctx：在后台完成请求（受请求超时约束），取消时立即返回
	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()
	select {
	case err := <-done:
		if err != nil && res.Outcome == OutcomeFailed && res.Err == nil {
			res.Err = err
		}
	case <-ctx.Done():
		log.Printf("fetch article %s cancelled: %v", url, ctx.Err())
		return Result{Outcome: OutcomeFailed, Err: ctx.Err()}
	}

	switch res.Outcome {
	case OutcomeFetched:
		res.Body = r.extractor.ExtractMainText(toUTF8(page, ctype))
	case OutcomeNotModified:
		res.Token = ""
	default:
		if res.Err == nil {
			res.Err = fmt.Errorf("unexpected status %d", res.Status)
		}
		log.Printf("fetch article %s failed: %v", url, res.Err)
	}
	return res
}

// toUTF8 colly 只在 Content-Type 声明了 charset 时转码；
// 未声明且不是合法 UTF-8 时按 meta 标签判断编码，判断不出则按 windows-1252 解码
func toUTF8(body []byte, contentType string) string {
	if utf8.Valid(body) {
		return string(body)
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	if out, err := enc.NewDecoder().Bytes(body); err == nil && utf8.Valid(out) {
		return string(out)
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}
