package roundtable

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentcouncil/types"
)

// roundMessages 构建一位参与者的本轮输入。
// 讨论记录按条拆成消息（旧 → 新），议题放在最后一条，token 裁剪时先丢最早的发言。
func roundMessages(topic string, round, rounds int, participants []string, transcript []Entry) []types.Message {
	msgs := make([]types.Message, 0, len(transcript)+1)
	for _, e := range transcript {
		msgs = append(msgs, types.NewUserMessage(fmt.Sprintf("[round %d] %s: %s", e.Round, e.AgentID, e.Content)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	fmt.Fprintf(&b, "This is round %d of %d of a roundtable with %s.\n", round, rounds, strings.Join(participants, ", "))
	if len(transcript) == 0 {
		b.WriteString("Open with your own perspective on the topic. Be concise and concrete.")
	} else {
		b.WriteString("The discussion so far is above. Build on, refine or challenge the points made, from your own perspective. Be concise and concrete.")
	}
	msgs = append(msgs, types.NewUserMessage(b.String()))
	return msgs
}

// synthesisMessages 汇总者的输入：完整讨论记录，不裁剪
func synthesisMessages(topic string, transcript []Entry) []types.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nFull roundtable transcript:\n", topic)
	writeTranscript(&b, transcript)
	b.WriteString("\nSynthesize the discussion into one final answer. Keep the points of agreement, resolve disagreements where the arguments allow it and name what stays open.")
	return []types.Message{types.NewUserMessage(b.String())}
}

// renderTranscript 超时时作为部分结论返回
func renderTranscript(transcript []Entry) string {
	var b strings.Builder
	writeTranscript(&b, transcript)
	return strings.TrimSpace(b.String())
}

func writeTranscript(b *strings.Builder, transcript []Entry) {
	for _, e := range transcript {
		fmt.Fprintf(b, "\n[round %d] %s:\n%s\n", e.Round, e.AgentID, e.Content)
	}
}
