package retrieval

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot 一份完整构建的语料快照：chunk 集合 + 两个索引 + 代数。
// 两个索引永远构建自同一 chunk 集合。发布后只读，
// 可与重建并发查询。
type Snapshot struct {
	generation uint64
	builtAt    time.Time

	chunks  map[string]*Chunk
	ordered []Chunk // 按 chunk id 升序，用于序列化与遍历
	vindex  *VectorIndex
	kindex  *KeywordIndex
}

// BuildSnapshot 由 chunk 集合构建快照。全部成功或整体失败，
// 不存在只进了一个索引的 chunk。
func BuildSnapshot(chunks []Chunk, generation uint64, cfg *Config) (*Snapshot, error) {
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	snap := &Snapshot{
		generation: generation,
		builtAt:    time.Now(),
		chunks:     make(map[string]*Chunk, len(ordered)),
		ordered:    ordered,
		vindex:     NewVectorIndex(cfg.EmbeddingDims),
		kindex:     NewKeywordIndex(cfg.BM25K1, cfg.BM25B),
	}

	for i := range snap.ordered {
		c := &snap.ordered[i]
		if err := snap.vindex.Add(c.ID, c.Vector); err != nil {
			return nil, err
		}
		snap.kindex.Add(c.ID, Tokenize(c.Content))
		snap.chunks[c.ID] = c
	}
	return snap, nil
}

// Chunk 按 id 查找。
func (s *Snapshot) Chunk(id string) (*Chunk, bool) {
	c, ok := s.chunks[id]
	return c, ok
}

// Chunks 返回按 id 升序的全部 chunk。调用方不得修改。
func (s *Snapshot) Chunks() []Chunk {
	return s.ordered
}

// Generation 返回快照代数。
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Len 返回 chunk 数。
func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// VectorIndex 返回向量索引（只读）。
func (s *Snapshot) VectorIndex() *VectorIndex {
	return s.vindex
}

// KeywordIndex 返回关键词索引（只读）。
func (s *Snapshot) KeywordIndex() *KeywordIndex {
	return s.kindex
}

// Corpus 当前生效快照的持有者。
// 读取方通过原子指针拿快照，单次查询期间始终使用同一份；
// 重建方是单写者，构建完成后整体换入。
type Corpus struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64

	// rebuildMu 串行化重建（单写者），不阻塞读取
	rebuildMu sync.Mutex
}

// NewCorpus 创建空语料。
func NewCorpus() *Corpus {
	return &Corpus{}
}

// Snapshot 返回当前快照，未发布过返回 nil。
func (c *Corpus) Snapshot() *Snapshot {
	return c.current.Load()
}

// NextGeneration 分配下一个快照代数。
func (c *Corpus) NextGeneration() uint64 {
	return c.gen.Add(1)
}

// Publish 原子换入新快照。进行中的查询继续持有旧快照，
// 不会看到半新半旧的语料。
func (c *Corpus) Publish(snap *Snapshot) {
	c.current.Store(snap)
	// 从磁盘快照恢复时对齐代数计数
	for {
		cur := c.gen.Load()
		if snap.generation <= cur || c.gen.CompareAndSwap(cur, snap.generation) {
			return
		}
	}
}

// LockRebuild 获取重建锁（单写者）。返回解锁函数。
func (c *Corpus) LockRebuild() func() {
	c.rebuildMu.Lock()
	return c.rebuildMu.Unlock
}
