package tokenizer

import (
	"strings"

	"github.com/BaSui01/agentcouncil/types"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) int

	// CountMessages 返回消息列表的总 token 数，
	// 包括每条消息的开销（角色标记、分隔符等）
	CountMessages(messages []types.Message) int

	// Name 返回分词器的名称
	Name() string
}

// 每条消息与整段对话的固定开销
const (
	perMessageOverhead      = 4
	conversationEndOverhead = 3
)

// openAIPrefixes 使用 tiktoken 精确计数的模型前缀
var openAIPrefixes = []string{"gpt-", "o1", "o3", "o4", "text-embedding-"}

// ForModel 为模型选择分词器：OpenAI 家族用 tiktoken，其余用估算器
func ForModel(model string) Tokenizer {
	lower := strings.ToLower(model)
	for _, p := range openAIPrefixes {
		if strings.HasPrefix(lower, p) {
			return NewTiktokenTokenizer(model)
		}
	}
	return NewEstimatorTokenizer()
}

// FitMessages 在 budget 内保留尽可能多的最新消息。
// system 消息与最新一条消息始终保留；其余消息从最旧的开始丢弃。budget <= 0 表示不限制。
func FitMessages(t Tokenizer, messages []types.Message, budget int) []types.Message {
	if budget <= 0 || t.CountMessages(messages) <= budget {
		return messages
	}

	var system, rest []types.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := t.CountMessages(system)
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := t.CountTokens(rest[i].Content) + perMessageOverhead
		if i < len(rest)-1 && used+cost > budget {
			break
		}
		used += cost
		keepFrom = i
	}

	out := make([]types.Message, 0, len(system)+len(rest)-keepFrom)
	out = append(out, system...)
	out = append(out, rest[keepFrom:]...)
	return out
}
