package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"resumerag/internal/db/postgres"
	"resumerag/internal/domain/retrieval"
	"resumerag/internal/ingest"
	applog "resumerag/internal/platform/log"
)

// Searcher 混合检索端口，由 retrieval.Retriever 实现。
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.FusedCandidate, *retrieval.Snapshot, error)
}

// RetrievalHandler 检索与索引管理接口
type RetrievalHandler struct {
	searcher Searcher
	ingestor *ingest.Ingestor
	corpus   *retrieval.Corpus
	resumes  *postgres.ResumeStore // 可为 nil，回落到快照视图
}

func NewRetrievalHandler(searcher Searcher, ingestor *ingest.Ingestor, corpus *retrieval.Corpus, resumes *postgres.ResumeStore) *RetrievalHandler {
	return &RetrievalHandler{searcher: searcher, ingestor: ingestor, corpus: corpus, resumes: resumes}
}

func (h *RetrievalHandler) RegisterRoutes(r chi.Router) {
	r.Post("/search", h.Search)
	r.Post("/resumes/reindex", h.Reindex)
	r.Get("/resumes", h.ListResumes)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchHit struct {
	ChunkID      string  `json:"chunk_id"`
	Filename     string  `json:"filename"`
	Section      string  `json:"section,omitempty"`
	Content      string  `json:"content"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	FusedScore   float64 `json:"fused_score"`
	Rank         int     `json:"rank"`
}

type searchResponse struct {
	Hits       []searchHit `json:"hits"`
	Generation uint64      `json:"generation"`
	ElapsedMs  int64       `json:"elapsed_ms"`
}

// Search POST /api/v1/search
// 裸检索：返回融合后的候选块及各路得分，不经生成。
func (h *RetrievalHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	candidates, snap, err := h.searcher.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		applog.Error("[API/Search] Search failed", "error", err)
		writeError(w, queryErrorStatus(err), err.Error())
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, &searchResponse{Hits: []searchHit{}, ElapsedMs: time.Since(start).Milliseconds()})
		return
	}

	hits := make([]searchHit, 0, len(candidates))
	for _, cand := range candidates {
		hit := searchHit{
			ChunkID:      cand.ChunkID,
			VectorScore:  cand.VectorScore,
			KeywordScore: cand.KeywordScore,
			FusedScore:   cand.FusedScore,
			Rank:         cand.Rank,
		}
		if chunk, ok := snap.Chunk(cand.ChunkID); ok {
			hit.Filename = chunk.Filename
			hit.Section = chunk.Section
			hit.Content = chunk.Content
		}
		hits = append(hits, hit)
	}

	writeJSON(w, http.StatusOK, &searchResponse{
		Hits:       hits,
		Generation: snap.Generation(),
		ElapsedMs:  time.Since(start).Milliseconds(),
	})
}

// Reindex POST /api/v1/resumes/reindex
// 全量重建。与进行中的查询并存：老快照服务到换入为止。
func (h *RetrievalHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingestor.Reindex(r.Context())
	if err != nil {
		applog.Error("[API/Reindex] Reindex failed", "error", err)
		writeError(w, queryErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type resumeInfo struct {
	Filename   string `json:"filename"`
	Chars      int    `json:"chars"`
	IngestedAt string `json:"ingested_at,omitempty"`
}

// ListResumes GET /api/v1/resumes
// 登记库可用时读库，否则从当前快照归纳文件清单。
func (h *RetrievalHandler) ListResumes(w http.ResponseWriter, r *http.Request) {
	if h.resumes != nil {
		docs, err := h.resumes.List(r.Context())
		if err != nil {
			applog.Error("[API/Resumes] Failed to list resumes", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list resumes")
			return
		}
		infos := make([]resumeInfo, 0, len(docs))
		for _, doc := range docs {
			infos = append(infos, resumeInfo{
				Filename:   doc.Filename,
				Chars:      doc.Chars,
				IngestedAt: doc.IngestedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, infos)
		return
	}

	writeJSON(w, http.StatusOK, h.snapshotView())
}

// snapshotView 无登记库时的降级清单：按文件聚合当前快照。
func (h *RetrievalHandler) snapshotView() []resumeInfo {
	snap := h.corpus.Snapshot()
	if snap == nil {
		return []resumeInfo{}
	}

	chars := make(map[string]int)
	for _, chunk := range snap.Chunks() {
		chars[chunk.Filename] += len([]rune(chunk.Content))
	}
	infos := make([]resumeInfo, 0, len(chars))
	for filename, n := range chars {
		infos = append(infos, resumeInfo{Filename: filename, Chars: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Filename < infos[j].Filename })
	return infos
}
