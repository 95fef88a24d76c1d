package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// 快照文件格式版本。字段布局变更时递增。
const snapshotVersion = 1

// snapshotFile 磁盘快照布局。
// 关键词倒排表不落盘：分词是纯函数，加载时由 chunk 文本确定性重建。
type snapshotFile struct {
	Version    int    `json:"version"`
	IndexType  string `json:"index_type"`
	Dims       int    `json:"dims"`
	Generation uint64 `json:"generation"`
	Chunks     []Chunk `json:"chunks"`
}

// SaveSnapshot 原子写入快照：先写临时文件再 rename，
// 崩溃不会留下半写状态。
func SaveSnapshot(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	file := snapshotFile{
		Version:    snapshotVersion,
		IndexType:  "flat",
		Dims:       snap.vindex.Dims(),
		Generation: snap.generation,
		Chunks:     snap.ordered,
	}
	data, err := json.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot 从磁盘加载快照并重建两个索引。
// 文件不存在返回 (nil, nil)；维度与配置不符返回 ErrDimensionMismatch。
func LoadSnapshot(path string, cfg *Config) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", file.Version, snapshotVersion)
	}
	if file.Dims != cfg.EmbeddingDims {
		return nil, fmt.Errorf("%w: snapshot dims %d, configured dims %d (rebuild required)",
			ErrDimensionMismatch, file.Dims, cfg.EmbeddingDims)
	}

	return BuildSnapshot(file.Chunks, file.Generation, cfg)
}
