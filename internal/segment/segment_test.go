package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegment_ShortTextSingleChunk(t *testing.T) {
	chunks := Segment("Hello world. This is great! Wonder?", 1000)
	if len(chunks) != 1 {
		t.Fatalf("期望 1 段，得到 %d 段: %+v", len(chunks), chunks)
	}
	want := "Hello world. This is great! Wonder?"
	if chunks[0].Text != want {
		t.Errorf("Text = %q, want %q", chunks[0].Text, want)
	}
	if chunks[0].Len != utf8.RuneCountInString(want) {
		t.Errorf("Len = %d", chunks[0].Len)
	}
}

func TestSegment_NoTerminatorAppendsPeriod(t *testing.T) {
	tests := []string{
		"just some words",
		"   padded text without ending   ",
		"line one\nline two",
	}
	for _, in := range tests {
		chunks := Segment(in, 100)
		if len(chunks) != 1 {
			t.Errorf("Segment(%q): 期望 1 段，得到 %d", in, len(chunks))
			continue
		}
		want := strings.TrimSpace(strings.ReplaceAll(in, "\n", " ")) + "."
		if chunks[0].Text != want {
			t.Errorf("Segment(%q) = %q, want %q", in, chunks[0].Text, want)
		}
	}
}

func TestSegment_KeepsExistingPunctuation(t *testing.T) {
	chunks := Segment("Already done!", 100)
	if len(chunks) != 1 || chunks[0].Text != "Already done!" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestSegment_RespectsMaxChars(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine. Ten eleven twelve."
	chunks := Segment(text, 30)
	if len(chunks) < 2 {
		t.Fatalf("期望多个分段，得到 %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Len > 30 {
			t.Errorf("分段 %d 超过上限: %d > 30 (%q)", c.Index, c.Len, c.Text)
		}
	}
	if chunks[0].Text != "One two three. Four five six." {
		t.Errorf("第一段 = %q", chunks[0].Text)
	}
}

func TestSegment_OversizedSentenceStandsAlone(t *testing.T) {
	long := strings.Repeat("word ", 20) + "end."
	text := "Short one. " + long + " Tail."
	chunks := Segment(text, 20)

	if len(chunks) != 3 {
		t.Fatalf("期望 3 段，得到 %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "Short one." {
		t.Errorf("chunk0 = %q", chunks[0].Text)
	}
	if chunks[1].Text != strings.TrimSpace(long) {
		t.Errorf("超长句子不应被截断: %q", chunks[1].Text)
	}
	if chunks[1].Len <= 20 {
		t.Errorf("超长句子长度应超过上限: %d", chunks[1].Len)
	}
	if chunks[2].Text != "Tail." {
		t.Errorf("chunk2 = %q", chunks[2].Text)
	}
}

func TestSegment_PreservesOrderAndContent(t *testing.T) {
	var parts []string
	for i := 0; i < 50; i++ {
		parts = append(parts, "Sentence number "+strings.Repeat("x", i%7)+" here")
	}
	text := strings.Join(parts, ". ") + "."

	chunks := Segment(text, 80)
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("Index 不连续: chunk %d 的 Index = %d", i, c.Index)
		}
	}

	var joined []string
	for _, c := range chunks {
		joined = append(joined, c.Text)
	}
	if got := strings.Join(joined, " "); got != text {
		t.Fatalf("分段拼接后与原文不一致:\n got %q\nwant %q", got, text)
	}
}

func TestSegment_EmptyInput(t *testing.T) {
	if chunks := Segment("   \n  ", 100); len(chunks) != 0 {
		t.Fatalf("空白输入应返回 0 段，得到 %+v", chunks)
	}
}

func TestSegment_DefaultMaxChars(t *testing.T) {
	text := strings.Repeat("Hello there friend. ", 40)
	for _, c := range Segment(text, 0) {
		if c.Len > DefaultMaxChars {
			t.Errorf("分段超过默认上限: %d", c.Len)
		}
	}
}

func TestSentences(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Hello. World", []string{"Hello.", "World."}},
		{"Really?! Yes.", []string{"Really?!", "Yes."}},
		{"Pi is 3.14 today", []string{"Pi is 3.14 today."}},
		{"Wait... what", []string{"Wait...", "what."}},
		{"a\r\nb", []string{"a b."}},
		{"", nil},
	}
	for _, tt := range tests {
		got := Sentences(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Sentences(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
