package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const DefaultMaxWords = 500

// Extractor 从网页 HTML 中提取正文，尽力而为：找不到正文时返回空字符串，从不报错
type Extractor interface {
	ExtractMainText(rawHTML string) string
}

// New 根据配置名称创建提取器：readability（默认）或 selector
func New(kind string, maxWords int) Extractor {
	if kind == "selector" {
		return NewSelectorExtractor(maxWords)
	}
	return NewReadabilityExtractor(maxWords)
}

// 依次尝试的正文容器
var contentSelectors = []string{"article", "main", "[role='main']"}

// SelectorExtractor 去掉 script/style 后，取第一个正文容器（article / main / role=main），
// 都没有时退回整个 body
type SelectorExtractor struct {
	MaxWords int
}

func NewSelectorExtractor(maxWords int) *SelectorExtractor {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &SelectorExtractor{MaxWords: maxWords}
}

func (e *SelectorExtractor) ExtractMainText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	var content *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			content = s
			break
		}
	}
	if content == nil {
		content = doc.Find("body").First()
		if content.Length() == 0 {
			content = doc.Selection
		}
	}

	return capWords(textOf(content), e.MaxWords)
}

// textOf 收集所有文本节点，节点之间以空格分隔，避免相邻段落的文字粘连
func textOf(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

// capWords 规范空白并截断到 max 个词
func capWords(text string, max int) string {
	words := strings.Fields(text)
	if max > 0 && len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}
