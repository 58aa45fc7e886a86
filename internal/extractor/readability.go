package extractor

import (
	"strings"

	"codeberg.org/readeck/go-readability/v2"
)

// readability 有时只提取出标题或元信息，正文短于该长度时改用选择器提取
const minReadableChars = 200

// ReadabilityExtractor 先用 readability 算法提取正文，结果过短时退回 SelectorExtractor
type ReadabilityExtractor struct {
	MaxWords int
	fallback *SelectorExtractor
}

func NewReadabilityExtractor(maxWords int) *ReadabilityExtractor {
	fb := NewSelectorExtractor(maxWords)
	return &ReadabilityExtractor{MaxWords: fb.MaxWords, fallback: fb}
}

func (e *ReadabilityExtractor) ExtractMainText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err == nil {
		var buf strings.Builder
		if err := article.RenderText(&buf); err == nil {
			if text := strings.TrimSpace(buf.String()); len(text) >= minReadableChars {
				return capWords(text, e.MaxWords)
			}
		}
	}
	return e.fallback.ExtractMainText(rawHTML)
}
