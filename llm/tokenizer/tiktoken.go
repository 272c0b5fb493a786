package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/agentcouncil/types"
	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 为 OpenAI 家族模型提供精确计数。
// 编码表首次使用时懒加载（可能需要下载），加载失败则永久退回估算器。
type TiktokenTokenizer struct {
	model    string
	encoding string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *EstimatorTokenizer
}

// encodingForModel 将模型前缀映射到 tiktoken 编码
func encodingForModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "gpt-4.1"),
		strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		model:    model,
		encoding: encodingForModel(model),
		fallback: NewEstimatorTokenizer(),
	}
}

func (t *TiktokenTokenizer) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
}

// CountTokens 实现 Tokenizer
func (t *TiktokenTokenizer) CountTokens(text string) int {
	t.init()
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages 实现 Tokenizer
func (t *TiktokenTokenizer) CountMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += perMessageOverhead + t.CountTokens(msg.Content) + t.CountTokens(string(msg.Role))
	}
	return total + conversationEndOverhead
}

// Name 实现 Tokenizer
func (t *TiktokenTokenizer) Name() string {
	t.init()
	if t.enc == nil {
		return fmt.Sprintf("tiktoken[%s](estimated)", t.encoding)
	}
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
