package query

import (
	"context"

	"resumerag/internal/adapter/provider/llm/openai"
)

// Prompt 一次生成请求的提示词。
type Prompt struct {
	System string
	User   string
}

// Generator 流式答案生成端口。token 通道随生成结束关闭，
// 中断错误经 error 通道送出。
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (<-chan string, <-chan error)
}

// LLMGenerator 基于 OpenAI 兼容 chat 接口的 Generator 实现。
type LLMGenerator struct {
	provider    *openai.Provider
	model       string
	temperature float64
	maxTokens   int
}

func NewLLMGenerator(provider *openai.Provider, model string, temperature float64, maxTokens int) *LLMGenerator {
	return &LLMGenerator{
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt Prompt) (<-chan string, <-chan error) {
	temperature := g.temperature
	maxTokens := g.maxTokens
	req := &openai.Request{
		Model: g.model,
		Messages: []openai.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Stream:      true,
	}
	return g.provider.StreamComplete(ctx, req)
}
