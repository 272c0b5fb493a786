package roundtable

import "time"

// State 会话状态
type State string

const (
	StateSelecting    State = "selecting"
	StateRound        State = "round"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// EventType 事件类型
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventRoundStarted    EventType = "round_started"
	EventEntry           EventType = "entry"
	EventAgentDropped    EventType = "agent_dropped"
	EventRoundCompleted  EventType = "round_completed"
	EventSynthesis       EventType = "synthesis"
	EventSessionFinished EventType = "session_finished"
)

// Event 圆桌会话事件
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Round     int       `json:"round,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	// Participants 仅 session_started 携带
	Participants []string `json:"participants,omitempty"`
	// Code 掉线原因或会话失败的错误码
	Code string `json:"code,omitempty"`
	// Partial 仅 session_finished 携带
	Partial   bool          `json:"partial,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observer 接收会话事件，必须可并发调用且不阻塞
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc 函数适配器
type ObserverFunc func(Event)

// OnEvent 实现 Observer
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// observers 依次分发给多个 Observer
type observers []Observer

func (o observers) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}
