package pipeline

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// defaultSeparators 按优先级排列的断点：段落、换行、句末标点、子句、空格，最后按字符切分。
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "。", "；", "; ", ", ", "，", " ", ""}

// Splitter 是递归字符切分器：优先在自然断点处切开，保证每个分块不超过 chunkSize 个字符。
type Splitter struct {
	chunkSize int
	overlap   int
	splitter  textsplitter.RecursiveCharacter
}

// NewSplitter 创建切分器。overlap 不合法时按 0 处理。
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return &Splitter{
		chunkSize: chunkSize,
		overlap:   overlap,
		// 长度按 rune 计算，与 textsplitter 的默认 LenFunc 一致
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(defaultSeparators),
		),
	}
}

// Split 将文本切分为若干分块，分块之间按 overlap 重叠，不做去重。
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
