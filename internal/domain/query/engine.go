package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resumerag/internal/cache"
	"resumerag/internal/domain/retrieval"
	applog "resumerag/internal/platform/log"
)

// Engine 查询引擎：缓存探查、混合检索、上下文组装、流式生成、
// 答案回写，全链路计时。
type Engine struct {
	retriever *retrieval.Retriever
	generator Generator
	cache     *cache.Layer // 可为 nil，降级为纯直连
	cfg       retrieval.Config
}

func NewEngine(retriever *retrieval.Retriever, generator Generator, cacheLayer *cache.Layer, cfg retrieval.Config) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("%w: retriever is required", retrieval.ErrConfiguration)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", retrieval.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		retriever: retriever,
		generator: generator,
		cache:     cacheLayer,
		cfg:       cfg,
	}, nil
}

// SubmitQuery 提交一次查询并立刻返回会话句柄，处理在后台进行。
// 空白问题直接拒绝，不建会话。
func (e *Engine) SubmitQuery(ctx context.Context, question string) (*Session, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", retrieval.ErrConfiguration)
	}

	s := newSession(uuid.NewString(), question)
	go e.run(ctx, s)
	return s, nil
}

func (e *Engine) run(ctx context.Context, s *Session) {
	defer close(s.done)
	defer close(s.tokens)

	start := time.Now()
	key := e.answerKey(s.Question)

	// ── 缓存探查 ──
	s.setState(StateCacheCheck)
	if e.cache != nil {
		if entry, ok := e.cache.GetAnswer(ctx, key); ok {
			e.respondFromCache(ctx, s, entry, start)
			return
		}
	}

	// ── 混合检索 ──
	s.setState(StateRetrieving)
	searchStart := time.Now()
	candidates, snap, err := e.retriever.Search(ctx, s.Question, e.cfg.TopK)
	if err != nil {
		applog.Error("[QueryEngine] retrieval failed", "session_id", s.ID, "error", err)
		s.fail(StateRetrieving, err)
		return
	}
	searchMs := time.Since(searchStart).Milliseconds()

	if len(candidates) == 0 {
		e.respondNoResults(ctx, s, searchMs, start)
		return
	}

	// ── 上下文组装 ──
	s.setState(StateContextAssembly)
	contextText, chunkIDs := assembleContext(candidates, snap, e.cfg.ContextBudget)

	// ── 流式生成 ──
	s.setState(StateGenerating)
	tokenCh, errCh := e.generator.Generate(ctx, Prompt{
		System: systemPrompt,
		User:   buildUserPrompt(contextText, s.Question),
	})

	var answer strings.Builder
	var firstTokenMs int64 = -1
	genStart := time.Now()
	for tokenCh != nil || errCh != nil {
		select {
		case tok, ok := <-tokenCh:
			if !ok {
				tokenCh = nil
				continue
			}
			if firstTokenMs < 0 {
				firstTokenMs = time.Since(genStart).Milliseconds()
			}
			answer.WriteString(tok)
			select {
			case s.tokens <- tok:
			case <-ctx.Done():
				s.fail(StateGenerating, ctx.Err())
				return
			}
		case genErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if genErr != nil {
				applog.Error("[QueryEngine] generation stream failed", "session_id", s.ID, "error", genErr)
				s.fail(StateGenerating, fmt.Errorf("%w: %v", retrieval.ErrGenerationStream, genErr))
				return
			}
		case <-ctx.Done():
			s.fail(StateGenerating, ctx.Err())
			return
		}
	}
	// 生成器对取消的响应可能是关通道而非报错，这里统一收口
	if ctx.Err() != nil {
		s.fail(StateGenerating, ctx.Err())
		return
	}
	if firstTokenMs < 0 {
		firstTokenMs = time.Since(genStart).Milliseconds()
	}

	// ── 答案回写 ──
	// 调用方取消后不回写，避免缓存半截答案。
	s.setState(StateCacheWrite)
	totalMs := time.Since(start).Milliseconds()
	if e.cache != nil && ctx.Err() == nil && answer.Len() > 0 {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		e.cache.PutAnswer(writeCtx, key, cache.AnswerEntry{
			Answer:       answer.String(),
			ChunkIDs:     chunkIDs,
			SearchMs:     searchMs,
			FirstTokenMs: firstTokenMs,
			TotalMs:      totalMs,
			CachedAt:     time.Now(),
		})
		cancel()
	}

	s.mu.Lock()
	s.state = StateResponded
	s.chunkIDs = chunkIDs
	s.metrics = Metrics{
		SearchMs:     searchMs,
		FirstTokenMs: firstTokenMs,
		TotalMs:      totalMs,
	}
	s.mu.Unlock()

	applog.Info("[QueryEngine] query responded",
		"session_id", s.ID,
		"chunks", len(chunkIDs),
		"search_ms", searchMs,
		"first_token_ms", firstTokenMs,
		"total_ms", totalMs)
}

// respondFromCache 命中答案缓存：整段答案作为单个 token 重放。
func (e *Engine) respondFromCache(ctx context.Context, s *Session, entry cache.AnswerEntry, start time.Time) {
	select {
	case s.tokens <- entry.Answer:
	case <-ctx.Done():
		s.fail(StateCacheCheck, ctx.Err())
		return
	}

	totalMs := time.Since(start).Milliseconds()
	s.mu.Lock()
	s.state = StateResponded
	s.chunkIDs = entry.ChunkIDs
	s.metrics = Metrics{
		SearchMs:     0,
		FirstTokenMs: totalMs,
		TotalMs:      totalMs,
		CacheHit:     true,
	}
	s.mu.Unlock()

	applog.Info("[QueryEngine] answer cache hit", "session_id", s.ID, "total_ms", totalMs)
}

// respondNoResults 检索为空：固定回答，不写缓存。
func (e *Engine) respondNoResults(ctx context.Context, s *Session, searchMs int64, start time.Time) {
	select {
	case s.tokens <- noResultsAnswer:
	case <-ctx.Done():
		s.fail(StateRetrieving, ctx.Err())
		return
	}

	totalMs := time.Since(start).Milliseconds()
	s.mu.Lock()
	s.state = StateResponded
	s.metrics = Metrics{
		SearchMs:     searchMs,
		FirstTokenMs: totalMs,
		TotalMs:      totalMs,
	}
	s.mu.Unlock()

	applog.Info("[QueryEngine] no retrieval results", "session_id", s.ID, "search_ms", searchMs)
}

// answerKey 答案缓存键：规整化问题 + 调参指纹。
// 调参变更后旧答案自然失效，无需显式清缓存。
func (e *Engine) answerKey(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized + "|" + e.cfg.Version()))
	return hex.EncodeToString(sum[:])
}
