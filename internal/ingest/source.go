package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"resumerag/internal/domain/retrieval"
	applog "resumerag/internal/platform/log"
)

// Source 简历来源。
type Source interface {
	Load(ctx context.Context) ([]retrieval.Document, error)
}

// DirectorySource 从本地目录读取简历文件。
// 不可解析或内容为空的文件记录告警后跳过，不中断整批。
type DirectorySource struct {
	dir      string
	registry *Registry
}

func NewDirectorySource(dir string, registry *Registry) *DirectorySource {
	return &DirectorySource{dir: dir, registry: registry}
}

func (s *DirectorySource) Load(ctx context.Context) ([]retrieval.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			applog.Warn("[Ingest] Resume directory does not exist", "dir", s.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read resume dir %s: %w", s.dir, err)
	}

	var docs []retrieval.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		parser, ok := s.registry.Lookup(entry.Name())
		if !ok {
			applog.Warn("[Ingest] Skipping unsupported file type", "file", entry.Name())
			continue
		}

		f, err := os.Open(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			applog.Warn("[Ingest] Failed to open resume", "file", entry.Name(), "error", err)
			continue
		}
		content, err := parser.Parse(f, entry.Name())
		f.Close()
		if err != nil {
			applog.Warn("[Ingest] Failed to parse resume", "file", entry.Name(), "error", err)
			continue
		}
		if content == "" {
			applog.Warn("[Ingest] Resume produced no text", "file", entry.Name())
			continue
		}

		docs = append(docs, retrieval.Document{
			ID:         uuid.NewString(),
			Filename:   entry.Name(),
			Content:    content,
			Chars:      utf8.RuneCountInString(content),
			IngestedAt: time.Now(),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}
