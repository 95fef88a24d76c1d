package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	applog "resumerag/internal/platform/log"
)

// ── Parser 接口 ───────────────────────────────────────────────

// Parser 简历文件解析器：把一种文件格式还原为纯文本。
type Parser interface {
	Parse(reader io.Reader, filename string) (string, error)
	// Extensions 支持的文件扩展名（含点，小写）
	Extensions() []string
}

// ── PDF ──────────────────────────────────────────────────────

// PDFParser 逐页提取 PDF 文本。单页提取失败跳过该页，
// 不让一页坏数据废掉整份简历。
type PDFParser struct{}

func (p *PDFParser) Extensions() []string {
	return []string{".pdf"}
}

func (p *PDFParser) Parse(reader io.Reader, filename string) (string, error) {
	// pdf 库需要 io.ReaderAt + size，先读到内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read pdf data: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", filename, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Ingest/PDF] Failed to extract page text", "file", filename, "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(collapseNewlines(sb.String())), nil
}

// ── DOCX ─────────────────────────────────────────────────────

// DOCXParser 提取 Word 简历文本。
type DOCXParser struct{}

func (p *DOCXParser) Extensions() []string {
	return []string{".docx"}
}

func (p *DOCXParser) Parse(reader io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read docx data: %w", err)
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx %s: %w", filename, err)
	}
	defer r.Close()

	// docx 库返回展开后的文档内容，逐行收集非空文本
	var sb strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(r.Editable().GetContent()))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return strings.TrimSpace(collapseNewlines(sb.String())), nil
}

// ── Markdown ─────────────────────────────────────────────────

// MarkdownParser 去除 Markdown 标记，只留正文。
type MarkdownParser struct{}

var (
	reMarkdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMarkdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reMarkdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	reMarkdownCode   = regexp.MustCompile("```[\\s\\S]*?```")
	reMarkdownInline = regexp.MustCompile("`([^`]+)`")
	reMarkdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMarkdownImage  = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reMarkdownHTML   = regexp.MustCompile(`<[^>]+>`)
)

func (p *MarkdownParser) Extensions() []string {
	return []string{".md", ".markdown"}
}

func (p *MarkdownParser) Parse(reader io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}

	text := string(data)

	// 代码块保留内容，去掉围栏
	text = reMarkdownCode.ReplaceAllStringFunc(text, func(s string) string {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	})

	text = reMarkdownImage.ReplaceAllString(text, "$1")
	text = reMarkdownLink.ReplaceAllString(text, "$1")
	text = reMarkdownBold.ReplaceAllString(text, "$1")
	text = reMarkdownItalic.ReplaceAllString(text, "$1")
	text = reMarkdownInline.ReplaceAllString(text, "$1")
	text = reMarkdownHeader.ReplaceAllString(text, "")
	text = reMarkdownHTML.ReplaceAllString(text, "")

	return strings.TrimSpace(collapseNewlines(text)), nil
}

// ── Plain text ───────────────────────────────────────────────

// PlainTextParser 纯文本简历原样读入。
type PlainTextParser struct{}

func (p *PlainTextParser) Extensions() []string {
	return []string{".txt", ".text"}
}

func (p *PlainTextParser) Parse(reader io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ── Registry ─────────────────────────────────────────────────

// Registry 按扩展名分发解析器。
type Registry struct {
	parsers map[string]Parser // key = ".ext"
}

// NewRegistry 创建注册表并注册内置简历格式。
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(&PDFParser{})
	r.Register(&DOCXParser{})
	r.Register(&MarkdownParser{})
	r.Register(&PlainTextParser{})
	return r
}

// Register 注册解析器，后注册者覆盖同扩展名。
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Lookup 按文件名取解析器，不支持的类型返回 (nil, false)。
func (r *Registry) Lookup(filename string) (Parser, bool) {
	p, ok := r.parsers[strings.ToLower(filepath.Ext(filename))]
	return p, ok
}

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

func collapseNewlines(text string) string {
	return reMultiNewlines.ReplaceAllString(text, "\n\n")
}
