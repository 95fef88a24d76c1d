package query

import (
	"fmt"
	"sync"
)

// State 查询会话状态机。
// Received → CacheCheck → (命中 → Responded)
//   | (未命中 → Retrieving → ContextAssembly → Generating → CacheWrite → Responded)
// Retrieving / Generating 失败进入终态 Failed。
type State string

const (
	StateReceived        State = "received"
	StateCacheCheck      State = "cache_check"
	StateRetrieving      State = "retrieving"
	StateContextAssembly State = "context_assembly"
	StateGenerating      State = "generating"
	StateCacheWrite      State = "cache_write"
	StateResponded       State = "responded"
	StateFailed          State = "failed"
)

// Metrics 单次查询的性能指标（毫秒）。
type Metrics struct {
	SearchMs     int64 `json:"search_ms"`
	FirstTokenMs int64 `json:"first_token_ms"`
	TotalMs      int64 `json:"total_ms"`
	CacheHit     bool  `json:"cache_hit"`
}

// Error 查询终态错误：携带会话 id 与失败阶段，
// 不存在不报阶段就静默返回空答案的失败。
type Error struct {
	SessionID string
	Stage     State
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query session %s failed at %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Session 一次查询的句柄。调用方从 Tokens 读流式 token，
// Done 关闭后可取 ChunkIDs / Metrics / Err。
// 会话随响应结束丢弃，指标只在结束时发布一次。
type Session struct {
	ID       string
	Question string

	tokens chan string
	done   chan struct{}

	mu       sync.Mutex
	state    State
	err      error
	chunkIDs []string
	metrics  Metrics
}

func newSession(id, question string) *Session {
	return &Session{
		ID:       id,
		Question: question,
		tokens:   make(chan string, 32),
		done:     make(chan struct{}),
		state:    StateReceived,
	}
}

// Tokens 答案 token 流。生成结束或失败后关闭；
// 失败前已送出的 token 不回收。
func (s *Session) Tokens() <-chan string {
	return s.tokens
}

// Done 会话结束信号。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait 阻塞到会话结束并返回终态错误。
func (s *Session) Wait() error {
	<-s.done
	return s.Err()
}

// State 当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err 终态错误，成功结束返回 nil。
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ChunkIDs 命中的 chunk id（按融合分降序）。结束前调用返回 nil。
func (s *Session) ChunkIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkIDs
}

// Metrics 性能指标。结束前调用返回零值。
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(stage State, err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = &Error{SessionID: s.ID, Stage: stage, Err: err}
	s.mu.Unlock()
}
