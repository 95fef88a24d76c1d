package query

import (
	"fmt"
	"strings"

	"resumerag/internal/domain/retrieval"
)

// systemPrompt 简历问答的固定系统提示词。
// 要求按文件名指认候选人，无依据时不编造。
const systemPrompt = `You are an expert ATS (Applicant Tracking System) assistant. You answer questions about candidates based solely on the resume excerpts provided in the context.

Rules:
- Identify candidates by the filename of their resume (e.g. "According to john_doe.pdf, ...").
- Only use information present in the context. If the context does not contain the answer, say so plainly.
- When several candidates match, list each one with the evidence from their resume.
- Be concise and factual. Do not speculate about information that is not in the context.`

// noResultsAnswer 检索无结果时的固定回答，不经生成器也不写缓存。
const noResultsAnswer = "No relevant information found in the resumes."

// assembleContext 把候选 chunk 拼装为生成上下文。
// 预算按 rune 计，超预算时从融合分最低的候选开始丢弃；
// 返回上下文文本与实际纳入的 chunk id（按融合分降序）。
func assembleContext(candidates []retrieval.FusedCandidate, snap *retrieval.Snapshot, budget int) (string, []string) {
	type block struct {
		id   string
		text string
	}

	blocks := make([]block, 0, len(candidates))
	total := 0
	for _, cand := range candidates {
		chunk, ok := snap.Chunk(cand.ChunkID)
		if !ok {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "=== %s (score: %.4f) ===\n", chunk.Filename, cand.FusedScore)
		if chunk.Section != "" {
			fmt.Fprintf(&b, "Section: %s\n", chunk.Section)
		}
		b.WriteString(chunk.Content)
		b.WriteString("\n")
		text := b.String()
		blocks = append(blocks, block{id: cand.ChunkID, text: text})
		total += len([]rune(text))
	}

	// candidates 已按融合分降序，尾部即分数最低。
	for budget > 0 && total > budget && len(blocks) > 1 {
		last := blocks[len(blocks)-1]
		total -= len([]rune(last.text))
		blocks = blocks[:len(blocks)-1]
	}

	var ctx strings.Builder
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ctx.WriteString(b.text)
		ctx.WriteString("\n")
		ids = append(ids, b.id)
	}
	return ctx.String(), ids
}

// buildUserPrompt 组合上下文与问题。
func buildUserPrompt(contextText, question string) string {
	var b strings.Builder
	b.WriteString("Resume excerpts:\n\n")
	b.WriteString(contextText)
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
