package retrieval

import "fmt"

// Chunker 固定窗口分块器。
// 按 rune 窗口切分，相邻块重叠 overlap 个字符；
// 去除重叠后拼接可精确还原原文。
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker 创建分块器。overlap 必须小于 chunkSize。
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", ErrConfiguration, overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split 将文档文本切分为有序 Chunk 序列。
// 纯函数：无副作用，相同输入产生相同输出。
// 短于一个窗口的文本产生单块；末尾新增内容不足 overlap 时并入前一块。
func (c *Chunker) Split(docID, filename, text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap

	type span struct{ start, end int }
	var spans []span
	for start := 0; ; start += step {
		end := start + c.chunkSize
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		spans = append(spans, span{start, end})
	}

	// 末尾块相对前一块的新增内容不足 overlap 时，扩展前块代替独立尾块
	if len(spans) >= 2 {
		last := spans[len(spans)-1]
		prev := spans[len(spans)-2]
		if last.end-prev.end < c.overlap {
			spans = spans[:len(spans)-1]
			spans[len(spans)-1].end = last.end
		}
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		content := string(runes[sp.start:sp.end])
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s_chunk_%d", docID, i),
			DocID:    docID,
			Filename: filename,
			Seq:      i,
			Start:    sp.start,
			Content:  content,
			Tokens:   len(Tokenize(content)),
		})
	}
	return chunks
}

// Overlap 返回配置的重叠宽度。
func (c *Chunker) Overlap() int {
	return c.overlap
}
