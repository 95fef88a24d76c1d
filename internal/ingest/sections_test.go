package ingest

import "testing"

const sampleResume = `Jane Doe
Backend Engineer

Summary
Seasoned backend engineer with a focus on distributed systems.

Skills:
Go, Python, PostgreSQL, Redis, Kubernetes

Professional Experience
Acme Corp - Senior Engineer (2019-2024)
Built the payments platform.

Education
B.Sc. Computer Science, State University
`

// TestDetectSections 标题行开启小节，区间延续到下一个标题
func TestDetectSections(t *testing.T) {
	spans := detectSections(sampleResume)
	if len(spans) != 4 {
		t.Fatalf("expected 4 sections, got %d: %+v", len(spans), spans)
	}

	labels := make([]string, len(spans))
	for i, s := range spans {
		labels[i] = s.label
	}
	want := []string{"summary", "skills", "experience", "education"}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("section %d: expected %q, got %q", i, want[i], labels[i])
		}
	}

	// 区间连续：每段结束即下一段开始
	for i := 0; i+1 < len(spans); i++ {
		if spans[i].end != spans[i+1].start {
			t.Errorf("section %q: end %d != next start %d", spans[i].label, spans[i].end, spans[i+1].start)
		}
	}
}

// TestSectionAt 偏移落在对应小节内
func TestSectionAt(t *testing.T) {
	spans := detectSections(sampleResume)

	// 标题前的抬头不属于任何小节
	if got := sectionAt(spans, 0); got != "" {
		t.Errorf("expected no section for header offset, got %q", got)
	}

	// skills 小节内部任意偏移
	var skills sectionSpan
	for _, s := range spans {
		if s.label == "skills" {
			skills = s
		}
	}
	if got := sectionAt(spans, skills.start+5); got != "skills" {
		t.Errorf("expected skills, got %q", got)
	}
}

// TestDetectSectionsNoHeaders 无标题的纯文本不产生小节
func TestDetectSectionsNoHeaders(t *testing.T) {
	if spans := detectSections("just a flat block of resume text without headers"); spans != nil {
		t.Errorf("expected nil spans, got %+v", spans)
	}
}

// TestRegistryLookup 按扩展名分发，大小写不敏感
func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"resume.pdf", "resume.PDF", "resume.docx", "resume.md", "resume.txt"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("expected parser for %s", name)
		}
	}
	if _, ok := r.Lookup("resume.xls"); ok {
		t.Error("expected no parser for unsupported extension")
	}
	if _, ok := r.Lookup("noextension"); ok {
		t.Error("expected no parser for missing extension")
	}
}
