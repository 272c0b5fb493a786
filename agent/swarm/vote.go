package swarm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/BaSui01/agentcouncil/types"
)

const (
	// specialtyFactor 专长加成系数
	specialtyFactor = 0.3
	// minConfidence 置信度下限，CONFIDENCE: 0 的提案仍保留票数
	minConfidence = 0.05
)

// Proposal 一位候选人在一轮中的提案
type Proposal struct {
	AgentID    string  `json:"agent_id"`
	FocusID    string  `json:"focus_id,omitempty"`
	Vote       string  `json:"vote"`
	Normalized string  `json:"normalized"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Pheromone  float64 `json:"pheromone"`
	Specialty  float64 `json:"specialty"`
	Weight     float64 `json:"weight"`
}

// voteWeight pheromone × (1 + 0.3 × specialty) × max(confidence, minConfidence)
func voteWeight(pheromone, specialty, confidence float64) float64 {
	if confidence < minConfidence {
		confidence = minConfidence
	}
	return pheromone * (1 + specialtyFactor*specialty) * confidence
}

// parseProposal 解析 VOTE / CONFIDENCE / REASONING 格式的回复。
// 缺少 VOTE 时取第一行非空文本；置信度缺失或无法解析时为 1，超过 1 时按百分比处理。
func parseProposal(content string) (vote string, confidence float64, reasoning string) {
	confidence = 1
	var reasonLines []string
	inReasoning := false
	firstLine := ""

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if firstLine == "" && trimmed != "" {
			firstLine = trimmed
		}

		if v, ok := field(trimmed, "VOTE"); ok {
			vote = v
			inReasoning = false
			continue
		}
		if v, ok := field(trimmed, "CONFIDENCE"); ok {
			confidence = parseConfidence(v)
			inReasoning = false
			continue
		}
		if v, ok := field(trimmed, "REASONING"); ok {
			inReasoning = true
			if v != "" {
				reasonLines = append(reasonLines, v)
			}
			continue
		}
		if inReasoning && trimmed != "" {
			reasonLines = append(reasonLines, trimmed)
		}
	}

	if vote == "" {
		vote = firstLine
	}
	return vote, confidence, strings.Join(reasonLines, "\n")
}

// field 匹配 "NAME: value"，名称不区分大小写
func field(line, name string) (string, bool) {
	if len(line) <= len(name) || !strings.EqualFold(line[:len(name)], name) || line[len(name)] != ':' {
		return "", false
	}
	return strings.TrimSpace(line[len(name)+1:]), true
}

func parseConfidence(v string) float64 {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	c, err := strconv.ParseFloat(v, 64)
	if err != nil || c < 0 {
		return 1
	}
	if c > 1 {
		c /= 100
	}
	if c > 1 {
		c = 1
	}
	return c
}

// normalize 小写、去除标点与符号、合并空白
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Cluster 规范化文本相同的提案
type Cluster struct {
	Key string `json:"key"`
	// Answer 簇内权重最高的原始提案（同权重取 Agent ID 较小者）
	Answer  string   `json:"answer"`
	Members []string `json:"members"`
	Weight  float64  `json:"weight"`
	Share   float64  `json:"share"`
}

// tally 聚类并排序：占比降序，其次权重降序，最后规范化文本升序。
// 总权重为 0 时占比退化为簇内人数占比。
func tally(proposals []Proposal) []Cluster {
	byKey := make(map[string]*Cluster)
	best := make(map[string]Proposal)
	total := 0.0

	for _, p := range proposals {
		c, ok := byKey[p.Normalized]
		if !ok {
			c = &Cluster{Key: p.Normalized}
			byKey[p.Normalized] = c
		}
		c.Members = append(c.Members, p.AgentID)
		c.Weight += p.Weight
		total += p.Weight

		cur, seen := best[p.Normalized]
		if !seen || p.Weight > cur.Weight || (p.Weight == cur.Weight && p.AgentID < cur.AgentID) {
			best[p.Normalized] = p
		}
	}

	out := make([]Cluster, 0, len(byKey))
	for key, c := range byKey {
		sort.Strings(c.Members)
		c.Answer = best[key].Vote
		if total > 0 {
			c.Share = c.Weight / total
		} else if len(proposals) > 0 {
			c.Share = float64(len(c.Members)) / float64(len(proposals))
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// voteMessages 构建一轮投票的输入；previous 为上一轮的簇，首轮为空
func voteMessages(task string, round, maxRounds int, previous []Cluster) []types.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	fmt.Fprintf(&b, "Voting round %d of %d.\n", round, maxRounds)
	if len(previous) > 0 {
		b.WriteString("Positions from the previous round (share of weighted support):\n")
		for _, c := range previous {
			fmt.Fprintf(&b, "- %s (%.0f%%)\n", c.Answer, c.Share*100)
		}
		b.WriteString("You may keep your position or move to another one if its arguments convince you.\n")
	}
	b.WriteString("\nAnswer in exactly this format:\n")
	b.WriteString("VOTE: <your answer in one short line>\n")
	b.WriteString("CONFIDENCE: <number between 0 and 1>\n")
	b.WriteString("REASONING: <one or two sentences>")
	return []types.Message{types.NewUserMessage(b.String())}
}
