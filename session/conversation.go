package session

import (
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/naya/types"
)

// =============================================================================
// 💬 对话
// =============================================================================

// EventKind 对话变更类型
type EventKind int

const (
	// EventAppended 追加了一条消息
	EventAppended EventKind = iota
	// EventUpdated 活动目标内容增长
	EventUpdated
	// EventSealed 活动目标冻结
	EventSealed
	// EventRemoved 移除了一条消息
	EventRemoved
	// EventCleared 对话被清空
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventUpdated:
		return "updated"
	case EventSealed:
		return "sealed"
	case EventRemoved:
		return "removed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event 一次对话变更。Message 是变更后的快照，Fragment 仅在 EventUpdated 时非空。
type Event struct {
	Kind     EventKind
	Message  types.Message
	Fragment string
}

// Observer 同步接收对话变更。回调内可以读取对话，但不能修改它。
type Observer func(Event)

// Conversation 有序的消息列表，插入顺序即时间顺序与展示顺序。
// 同一时间最多只有一条活动目标（仍在增长的助手消息）。
type Conversation struct {
	// emitMu 串行化 "修改 + 通知"，保证观察者按修改顺序看到完整状态
	emitMu sync.Mutex

	mu        sync.RWMutex
	messages  []types.Message
	active    string
	observers []observerEntry
	nextObs   int
	dedup     DuplicatePolicy
	now       func() time.Time
}

type observerEntry struct {
	id int
	fn Observer
}

// ConversationOption 配置 Conversation
type ConversationOption func(*Conversation)

// WithDedupWindow 设置语音重复抑制窗口
func WithDedupWindow(d time.Duration) ConversationOption {
	return func(c *Conversation) {
		if d >= 0 {
			c.dedup.Window = d
		}
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// NewConversation 创建空对话
func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{
		dedup:     DuplicatePolicy{Window: DefaultDedupWindow},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages 返回消息快照
func (c *Conversation) Messages() []types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len 返回消息条数
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Active 返回活动目标 ID，没有时为空
func (c *Conversation) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Subscribe 注册观察者，返回取消函数
func (c *Conversation) Subscribe(fn Observer) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
		})
	}
}

// mutate 在 emitMu 下执行修改并通知观察者
func (c *Conversation) mutate(fn func() []Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	events := fn()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o.fn)
	}
	c.mu.Unlock()

	for _, e := range events {
		for _, o := range observers {
			o(e)
		}
	}
}

func (c *Conversation) indexOf(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) appendLocked(m types.Message) Event {
	c.messages = append(c.messages, m)
	return Event{Kind: EventAppended, Message: m}
}

func (c *Conversation) removeLocked(id string) (Event, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return Event{}, false
	}
	m := c.messages[i]
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	if c.active == id {
		c.active = ""
	}
	return Event{Kind: EventRemoved, Message: m}, true
}

// AppendUser 追加用户消息
func (c *Conversation) AppendUser(text string) types.Message {
	return c.appendMessage(types.RoleUser, text)
}

// AppendAssistant 追加一条已完成的助手消息
func (c *Conversation) AppendAssistant(text string) types.Message {
	return c.appendMessage(types.RoleAssistant, text)
}

func (c *Conversation) appendMessage(role types.Role, text string) types.Message {
	var msg types.Message
	c.mutate(func() []Event {
		msg = types.NewMessageAt(role, text, c.now())
		return []Event{c.appendLocked(msg)}
	})
	return msg
}

// AppendVoice 追加语音通道产生的消息。与窗口内已有消息重复时不追加，返回 false。
// 查重与追加是一个原子步骤。
func (c *Conversation) AppendVoice(role types.Role, text string, at time.Time) (types.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (role != types.RoleUser && role != types.RoleAssistant) {
		return types.Message{}, false
	}

	var (
		msg types.Message
		ok  bool
	)
	c.mutate(func() []Event {
		if at.IsZero() {
			at = c.now()
		}
		if c.dedup.IsDuplicate(c.messages, role, text, at) {
			return nil
		}
		msg = types.NewMessageAt(role, text, at)
		ok = true
		return []Event{c.appendLocked(msg)}
	})
	return msg, ok
}

// Restore 对话为空时载入历史消息，返回载入条数
func (c *Conversation) Restore(msgs []types.Message) int {
	n := 0
	c.mutate(func() []Event {
		if len(c.messages) > 0 {
			return nil
		}
		events := make([]Event, 0, len(msgs))
		for _, m := range msgs {
			events = append(events, c.appendLocked(m))
		}
		n = len(msgs)
		return events
	})
	return n
}

// Clear 清空对话并丢弃活动目标
func (c *Conversation) Clear() {
	c.mutate(func() []Event {
		c.messages = nil
		c.active = ""
		return []Event{{Kind: EventCleared}}
	})
}

// =============================================================================
// 🔗 streaming.Sink 实现
// =============================================================================

// Open 追加空的助手占位消息并设为活动目标
func (c *Conversation) Open() string {
	var id string
	c.mutate(func() []Event {
		var events []Event
		if c.active != "" {
			if i := c.indexOf(c.active); i >= 0 {
				events = append(events, Event{Kind: EventSealed, Message: c.messages[i]})
			}
		}
		msg := types.NewMessageAt(types.RoleAssistant, "", c.now())
		c.active = msg.ID
		id = msg.ID
		return append(events, c.appendLocked(msg))
	})
	return id
}

// Append 把片段追加到活动目标。id 不是活动目标时忽略。
func (c *Conversation) Append(id, fragment string) {
	c.mutate(func() []Event {
		if id == "" || id != c.active {
			return nil
		}
		i := c.indexOf(id)
		if i < 0 {
			c.active = ""
			return nil
		}
		c.messages[i].Content += fragment
		return []Event{{Kind: EventUpdated, Message: c.messages[i], Fragment: fragment}}
	})
}

// Seal 冻结活动目标
func (c *Conversation) Seal(id string) {
	c.mutate(func() []Event {
		if id == "" || id != c.active {
			return nil
		}
		c.active = ""
		if i := c.indexOf(id); i >= 0 {
			return []Event{{Kind: EventSealed, Message: c.messages[i]}}
		}
		return nil
	})
}

// Rollback 空的目标被移除，非空的保留并冻结，然后追加致歉消息
func (c *Conversation) Rollback(id, apology string) {
	c.mutate(func() []Event {
		var events []Event
		if id != "" {
			if i := c.indexOf(id); i >= 0 {
				if c.messages[i].Content == "" {
					if e, ok := c.removeLocked(id); ok {
						events = append(events, e)
					}
				} else {
					events = append(events, Event{Kind: EventSealed, Message: c.messages[i]})
				}
			}
			if c.active == id {
				c.active = ""
			}
		}
		msg := types.NewMessageAt(types.RoleAssistant, apology, c.now())
		return append(events, c.appendLocked(msg))
	})
}

// Drop 丢弃 id 对应的消息，不做收尾
func (c *Conversation) Drop(id string) {
	c.mutate(func() []Event {
		if e, ok := c.removeLocked(id); ok {
			return []Event{e}
		}
		return nil
	})
}
