package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/LJTian/NewsDigest/internal/enricher"
)

// Generator 文本生成服务：输入 prompt，返回生成的文本
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator 兼容 OpenAI Chat Completions 协议的生成服务（OpenAI、Gemini 兼容端点等）
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// TopicSummary 单个主题的摘要与要点；两次生成互不影响，失败时各自给出固定文案
type TopicSummary struct {
	Topic    string
	Articles int
	Summary  string
	Insights string

	Err         error
	InsightsErr error
}

// Digest 按主题（名称排序）逐个生成摘要与要点；某个主题失败只记录日志，不影响其它主题
func Digest(ctx context.Context, gen Generator, byTopic map[string][]enricher.Article) []TopicSummary {
	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	out := make([]TopicSummary, 0, len(topics))
	for _, topic := range topics {
		articles := byTopic[topic]
		s := TopicSummary{Topic: topic, Articles: len(articles)}
		if len(articles) == 0 {
			s.Summary = fmt.Sprintf("No %s articles found.", topic)
			s.Insights = s.Summary
			out = append(out, s)
			continue
		}

		text, err := gen.Generate(ctx, summaryPrompt(topic, articles))
		if err != nil {
			log.Printf("digest %s summary: %v", topic, err)
			s.Err = err
			s.Summary = fmt.Sprintf("Failed to summarize %s articles.", topic)
		} else {
			s.Summary = text
		}

		text, err = gen.Generate(ctx, insightsPrompt(topic, articles))
		if err != nil {
			log.Printf("digest %s insights: %v", topic, err)
			s.InsightsErr = err
			s.Insights = fmt.Sprintf("Failed to generate insights for %s.", topic)
		} else {
			s.Insights = text
		}
		out = append(out, s)
	}
	return out
}

func summaryPrompt(topic string, articles []enricher.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional tech news summarizer.\nRead these %s articles and provide a concise summary in 3-4 sentences.\n\nArticles:\n", strings.ToUpper(topic))
	writeArticles(&b, articles)
	b.WriteString("\nSUMMARY:")
	return b.String()
}

func insightsPrompt(topic string, articles []enricher.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a tech industry analyst.\nAnalyze these %s articles and extract KEY INSIGHTS and emerging TRENDS.\n\n", strings.ToUpper(topic))
	b.WriteString("Format your response as:\n**KEY INSIGHTS:**\n- [Insight 1]\n- [Insight 2]\n- [Insight 3]\n\n")
	b.WriteString("**EMERGING TRENDS:**\n- [Trend 1]\n- [Trend 2]\n\n")
	b.WriteString("**WHY IT MATTERS:**\n[2-3 sentences explaining the impact]\n\nArticles:\n")
	writeArticles(&b, articles)
	b.WriteString("\nINSIGHTS AND TRENDS:")
	return b.String()
}

func writeArticles(b *strings.Builder, articles []enricher.Article) {
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "\nTitle: %s\nLink: %s\nBody: %s\n", a.Title, a.Link, a.Body)
	}
}
