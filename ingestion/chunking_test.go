package ingestion

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestChunkMarkdownRespectsOverlap(t *testing.T) {
	text := "# Title\n\n" +
		"## Section One\n\n" +
		"Paragraph one." +
		"\n\n" +
		"Paragraph two is quite a bit longer than the first paragraph and should trigger a split." +
		"\n\n" +
		"Paragraph three." +
		"\n\n" +
		"Paragraph four."

	fragments, sections, topics := ChunkMarkdown(text, 50, 10)
	if len(fragments) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(fragments))
	}

	if fragments[0].Text == fragments[1].Text {
		t.Fatal("expected overlapping but not identical chunks")
	}

	if len(sections) != 2 {
		t.Fatalf("expected 2 section metadata entries, got %d", len(sections))
	}

	if len(topics) != 1 || topics[0].Name != "Section One" {
		t.Fatalf("expected topic from the level-2 heading, got %+v", topics)
	}
}

func TestChunkMarkdownTagsFragmentsWithSections(t *testing.T) {
	text := "# Intro\n\nIntro paragraph.\n\n## Details\n\nDetail paragraph."

	fragments, sections, _ := ChunkMarkdown(text, 1000, 0)
	if len(fragments) != 1 {
		t.Fatalf("expected a single chunk for small content, got %d", len(fragments))
	}
	if fragments[0].Section.Title != "Intro" {
		t.Fatalf("expected first chunk tagged with its opening section, got %q", fragments[0].Section.Title)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[1].Title != "Details" || sections[1].Level != 2 || sections[1].Order != 1 {
		t.Fatalf("unexpected section metadata: %+v", sections[1])
	}
}

func TestChunkMarkdownHandlesEmpty(t *testing.T) {
	fragments, sections, topics := ChunkMarkdown("\n\n", 100, 20)
	if len(fragments) != 0 {
		t.Fatalf("expected no chunks for empty content, got %d", len(fragments))
	}
	if len(sections) != 0 {
		t.Fatalf("expected no sections for empty content, got %d", len(sections))
	}
	if len(topics) != 0 {
		t.Fatalf("expected no topics for empty content, got %d", len(topics))
	}
}

func TestChunkPlainText(t *testing.T) {
	content := "First paragraph of the report.\n\nSecond paragraph with more detail."

	fragments, sections := ChunkPlainText(content, "Quarterly Report", 1000, 0)
	if len(fragments) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(fragments))
	}
	if len(sections) != 1 || sections[0].Title != "Quarterly Report" {
		t.Fatalf("expected one synthetic section named after the title, got %+v", sections)
	}
	if fragments[0].Section.Title != "Quarterly Report" {
		t.Fatalf("expected fragment tagged with the synthetic section, got %q", fragments[0].Section.Title)
	}
}

func TestChunkPlainTextSplitsDenseContent(t *testing.T) {
	// No blank lines, just newline separated lines well past the target.
	content := ""
	for i := 0; i < 20; i++ {
		content += "A line of extracted text that keeps going for a while.\n"
	}

	fragments, _ := ChunkPlainText(content, "Dense", 200, 0)
	if len(fragments) < 2 {
		t.Fatalf("expected dense content to split into multiple chunks, got %d", len(fragments))
	}
}

func TestExtractTitle(t *testing.T) {
	content := "Some intro\n# Heading One\nMore text"
	if title := ExtractTitle(content, "fallback"); title != "Heading One" {
		t.Fatalf("expected title 'Heading One', got %q", title)
	}
	if title := ExtractTitle("no headings here", "fallback"); title != "fallback" {
		t.Fatalf("expected fallback title, got %q", title)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]DocumentFormat{
		"notes.md":       FormatMarkdown,
		"notes.MARKDOWN": FormatMarkdown,
		"report.pdf":     FormatPDF,
		"data.csv":       FormatCSV,
		"image.png":      FormatUnknown,
		"noext":          FormatUnknown,
	}

	for path, want := range cases {
		if got := DetectFormat(path); got != want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestIngestDirectoryMissingEmbedder(t *testing.T) {
	svc := NewService((*pgxpool.Pool)(nil), nil, nil, nil, 128)
	if err := svc.IngestDirectory(context.Background(), "./does-not-matter"); err == nil {
		t.Fatal("expected error when embedder is nil")
	}
}
