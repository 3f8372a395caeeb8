package chunker

import (
	"strings"
	"testing"

	"mercator-hq/auditor/pkg/audit"
)

func assertOffsets(t *testing.T, text string, chunks []audit.DocumentChunk) {
	t.Helper()
	for _, c := range chunks {
		if c.StartPos < 0 || c.StartPos > c.EndPos || c.EndPos > len(text) {
			t.Fatalf("chunk %s has invalid span [%d,%d) for text of len %d", c.ID, c.StartPos, c.EndPos, len(text))
		}
		if text[c.StartPos:c.EndPos] != c.Text {
			t.Errorf("chunk %s text %q does not match source span %q", c.ID, c.Text, text[c.StartPos:c.EndPos])
		}
	}
}

func TestChunk_HeadingsParagraphsTables(t *testing.T) {
	text := "# 保险条款\n\n第一条 总则\n本保险条款如下。\n被保险人应当如实告知。\n\n" +
		"| 项目 | 金额 |\n|---|---|\n| 保费 | ¥1,000.00 |\n| 保额 | ¥50,000 |\n\nClosing remarks here."

	c := New(nil, nil)
	chunks := c.Chunk("doc1", text)
	assertOffsets(t, text, chunks)

	wantTypes := []audit.ChunkType{
		audit.ChunkHeading,
		audit.ChunkHeading,
		audit.ChunkParagraph,
		audit.ChunkTableHeader,
		audit.ChunkTableRow,
		audit.ChunkTableRow,
		audit.ChunkParagraph,
	}
	if len(chunks) != len(wantTypes) {
		for _, ch := range chunks {
			t.Logf("%s %q", ch.Type, ch.Text)
		}
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantTypes))
	}
	for i, want := range wantTypes {
		if chunks[i].Type != want {
			t.Errorf("chunk[%d].Type = %s, want %s (%q)", i, chunks[i].Type, want, chunks[i].Text)
		}
		if chunks[i].Index != i {
			t.Errorf("chunk[%d].Index = %d", i, chunks[i].Index)
		}
		if chunks[i].DocumentID != "doc1" {
			t.Errorf("chunk[%d].DocumentID = %q", i, chunks[i].DocumentID)
		}
	}
	if got := chunks[2].Metadata["section"]; got != "第一条 总则" {
		t.Errorf("paragraph section = %v, want 第一条 总则", got)
	}
	if got := chunks[5].Metadata["row_index"]; got != 2 {
		t.Errorf("last row_index = %v, want 2", got)
	}
}

func TestChunk_SplitsLongParagraphIntoSentences(t *testing.T) {
	text := "First sentence is here. Second one costs 3.5 dollars! Third? 第四句。"
	c := New(&Config{MaxChunkSize: 10}, nil)
	chunks := c.Chunk("d", text)
	assertOffsets(t, text, chunks)

	want := []string{"First sentence is here.", "Second one costs 3.5 dollars!", "Third?", "第四句。"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i].Text, w)
		}
		if chunks[i].Type != audit.ChunkSentence {
			t.Errorf("chunk[%d].Type = %s, want sentence", i, chunks[i].Type)
		}
	}
}

func TestChunk_SentenceMode(t *testing.T) {
	text := "本保险条款如下。本条款自签订之日起生效。"
	c := New(&Config{SplitSentences: true}, nil)
	chunks := c.Chunk("d", text)
	assertOffsets(t, text, chunks)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
}

func TestChunk_EmptyAndWhitespace(t *testing.T) {
	c := New(nil, nil)
	if got := c.Chunk("d", ""); len(got) != 0 {
		t.Errorf("empty text produced %d chunks", len(got))
	}
	if got := c.Chunk("d", "  \n\t\n \r\n"); len(got) != 0 {
		t.Errorf("whitespace text produced %d chunks", len(got))
	}
}

func TestChunk_CRLFAndIndentation(t *testing.T) {
	text := "  Indented paragraph line one\r\n  line two  \r\n\r\nNext"
	chunks := New(nil, nil).Chunk("d", text)
	assertOffsets(t, text, chunks)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Text, "Indented") || !strings.HasSuffix(chunks[0].Text, "two") {
		t.Errorf("paragraph not trimmed: %q", chunks[0].Text)
	}
}

func TestIsHeading(t *testing.T) {
	c := New(nil, nil)
	tests := []struct {
		line string
		want bool
	}{
		{"## Scope", true},
		{"第三章 责任免除", true},
		{"一、投保范围", true},
		{"1.2 Definitions", true},
		{"1. This is a full sentence that ends with a period.", false},
		{"本保险条款如下。", false},
		{"Plain paragraph text", false},
	}
	for _, tt := range tests {
		if got := c.isHeading(tt.line); got != tt.want {
			t.Errorf("isHeading(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
