package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"resumerag/internal/db/postgres"
	"resumerag/internal/domain/query"
	"resumerag/internal/domain/retrieval"
	"resumerag/internal/ingest"
	applog "resumerag/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	QueryTimeout time.Duration // 单次查询超时（同步/流式）
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // SSE 需要较长写超时
		QueryTimeout: 2 * time.Minute,
	}
}

// Server HTTP 服务器
type Server struct {
	config   *ServerConfig
	engine   *query.Engine
	searcher Searcher
	ingestor *ingest.Ingestor
	corpus   *retrieval.Corpus
	resumes  *postgres.ResumeStore // 可为 nil
	httpSrv  *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, engine *query.Engine, searcher Searcher, ingestor *ingest.Ingestor, corpus *retrieval.Corpus, resumes *postgres.ResumeStore) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:   config,
		engine:   engine,
		searcher: searcher,
		ingestor: ingestor,
		corpus:   corpus,
		resumes:  resumes,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Resume Q&A API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	queryHandler := NewQueryHandler(s.engine, s.config.QueryTimeout)
	retrievalHandler := NewRetrievalHandler(s.searcher, s.ingestor, s.corpus, s.resumes)

	r.Route("/api/v1", func(r chi.Router) {
		queryHandler.RegisterRoutes(r)
		retrievalHandler.RegisterRoutes(r)
	})
	return r
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
