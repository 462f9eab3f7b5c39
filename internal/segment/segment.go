// Package segment 将任意长度的文本按句子边界切分为有序、长度受限的分段，
// 使长文本可以逐段合成而不被后端截断。
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars 是未指定上限时每段的最大字符数。
const DefaultMaxChars = 350

// Chunk 是输入文本中的一个有序分段。
type Chunk struct {
	Index int
	Text  string
	// Len 为 Text 的字符（rune）数。
	Len int
}

// Segment 将文本切分为不超过 maxChars 个字符的分段。
//
// 句子按顺序贪心合并，句间以单个空格连接；单个句子本身超过上限时
// 独占一段且不会被截断或再拆分。分段顺序与原文一致，内容不会丢失。
func Segment(text string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var chunks []Chunk
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  current.String(),
			Len:   currentLen,
		})
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if currentLen > 0 && currentLen+1+n > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += n
	}
	flush()
	return chunks
}

// Sentences 将文本拆分为句子。
// 换行视为空格；句末标记为 "!"、"?" 以及后跟空白的 "."；
// 连续的句末标点归入同一句。没有句末标点的句子补一个 "."。
func Sentences(text string) []string {
	text = normalizeNewlines(text)

	var sentences []string
	emit := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if !hasTerminal(s) {
			s += "."
		}
		sentences = append(sentences, s)
	}

	start := 0
	runes := []rune(text)
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += utf8.RuneLen(r)
	}
	offsets[len(runes)] = pos

	for i := 0; i < len(runes); i++ {
		if !isBoundary(runes, i) {
			continue
		}
		// 吞掉紧随其后的句末标点，例如 "?!" 或 "..."
		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		emit(text[offsets[start]:offsets[end]])
		start = end
		i = end - 1
	}
	if start < len(runes) {
		emit(text[offsets[start]:])
	}
	return sentences
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, text)
}

func isBoundary(runes []rune, i int) bool {
	switch runes[i] {
	case '!', '?':
		return true
	case '.':
		// "3.14" 中间的点不是句末
		return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
	}
	return false
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func hasTerminal(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return isTerminal(r)
}
