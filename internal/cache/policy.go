package cache

// NoTokenPolicy 响应中没有 Last-Modified 时如何处理缓存
type NoTokenPolicy string

const (
	// PolicyRefetch 不写缓存，之后每次都无条件重新抓取
	PolicyRefetch NoTokenPolicy = "refetch"
	// PolicyKeepBody 以空 Token 保存正文：之后仍无条件抓取，但抓取失败时可回退到上次的正文
	PolicyKeepBody NoTokenPolicy = "keep-body"
)

// Merge 根据抓取结果决定缓存记录如何更新，write 为 false 时调用方不得写入。
// NotModified 与 Failed 从不更新记录
func Merge(prev *Record, res Result, policy NoTokenPolicy) (rec Record, write bool) {
	if res.Outcome != OutcomeFetched {
		return Record{}, false
	}
	if res.Token != "" {
		return Record{Token: res.Token, Body: res.Body}, true
	}
	if policy != PolicyKeepBody {
		return Record{}, false
	}
	if prev != nil && prev.Token == "" && prev.Body == res.Body {
		return Record{}, false
	}
	return Record{Body: res.Body}, true
}

// Body 正文回退链：本次抓取到的正文 → 缓存正文 → 订阅源摘要 → 空
func Body(res Result, prev *Record, summary string) string {
	if res.Outcome == OutcomeFetched && res.Body != "" {
		return res.Body
	}
	if prev != nil && prev.Body != "" {
		return prev.Body
	}
	return summary
}
