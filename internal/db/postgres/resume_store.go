package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"resumerag/internal/domain/retrieval"
	applog "resumerag/internal/platform/log"
)

// ResumeStore PostgreSQL 实现的简历文档登记表。
// 文档入库后不可变，同名重新摄取整体替换。
// 可选组件：未配置 DATABASE_URL 时服务不落盘原文，功能不受影响。
type ResumeStore struct {
	db *sql.DB
}

// NewResumeStore 创建文档登记表。
func NewResumeStore(db *sql.DB) *ResumeStore {
	return &ResumeStore{db: db}
}

// EnsureTable 确保 resumes 表存在。
func (s *ResumeStore) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS resumes (
		id          UUID PRIMARY KEY,
		filename    VARCHAR(512) NOT NULL UNIQUE,
		content     TEXT NOT NULL,
		chars       INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_resumes_filename ON resumes(filename);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		applog.Error("[Resumes/PG] Failed to create table", "error", err)
		return fmt.Errorf("ensure resumes table: %w", err)
	}
	return nil
}

// Upsert 按 filename 全量替换：新 id、新内容、新摄取时间。
func (s *ResumeStore) Upsert(ctx context.Context, doc *retrieval.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resumes (id, filename, content, chars, ingested_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (filename) DO UPDATE
		 SET id = EXCLUDED.id,
		     content = EXCLUDED.content,
		     chars = EXCLUDED.chars,
		     ingested_at = EXCLUDED.ingested_at`,
		doc.ID, doc.Filename, doc.Content, doc.Chars, doc.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert resume %s: %w", doc.Filename, err)
	}
	return nil
}

// List 按 filename 升序返回全部文档（含原文，供启动时重建索引）。
func (s *ResumeStore) List(ctx context.Context) ([]retrieval.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content, chars, ingested_at FROM resumes ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	defer rows.Close()

	var docs []retrieval.Document
	for rows.Next() {
		var doc retrieval.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Chars, &doc.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
