package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/naya/internal/tlsutil"
	"github.com/BaSui01/naya/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State 语音连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// dialTimeout 握手超时
const dialTimeout = 15 * time.Second

var (
	ErrAlreadyConnected = errors.New("voice: channel already connected")
	ErrChannelClosed    = errors.New("voice: channel is closed")
)

// 语音代理协议事件
const (
	eventUserTranscript = "user_transcript"
	eventAgentResponse  = "agent_response"
	eventPing           = "ping"
	eventPong           = "pong"
	eventMetadata       = "conversation_initiation_metadata"
)

type agentEvent struct {
	Type string `json:"type"`

	UserTranscription *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponse *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	Ping *struct {
		EventID int64 `json:"event_id"`
		PingMS  int   `json:"ping_ms"`
	} `json:"ping_event,omitempty"`

	Metadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`
}

type pongEvent struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

// WebSocketConfig 语音代理连接配置
type WebSocketConfig struct {
	URL          string
	Subprotocols []string
	Header       http.Header
	KeepAlive    time.Duration // 0 表示不发送 WebSocket ping
	ReadLimit    int64
	Buffer       int
}

// Option 配置 WebSocketChannel
type Option func(*WebSocketConfig)

// WithKeepAlive 设置心跳间隔
func WithKeepAlive(d time.Duration) Option {
	return func(c *WebSocketConfig) { c.KeepAlive = d }
}

// WithHeader 设置握手请求头
func WithHeader(h http.Header) Option {
	return func(c *WebSocketConfig) { c.Header = h }
}

// WithBuffer 设置 Utterance channel 的缓冲大小
func WithBuffer(n int) Option {
	return func(c *WebSocketConfig) {
		if n >= 0 {
			c.Buffer = n
		}
	}
}

// WebSocketChannel 通过 WebSocket 连接语音代理，把转写与回复事件变成 Utterance。
// 不自动重连：连接结束后可以再次 Connect。
type WebSocketChannel struct {
	cfg    WebSocketConfig
	logger *zap.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	onStateChange  func(State)
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewWebSocketChannel 创建语音通道
func NewWebSocketChannel(url string, logger *zap.Logger, opts ...Option) *WebSocketChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := WebSocketConfig{
		URL:       url,
		KeepAlive: 30 * time.Second,
		ReadLimit: 1 << 20,
		Buffer:    16,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WebSocketChannel{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "voice_ws")),
		state:  StateDisconnected,
	}
}

// OnStateChange 注册状态回调
func (c *WebSocketChannel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// State 当前连接状态
func (c *WebSocketChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID 语音代理分配的会话 ID（收到元数据事件后可用）
func (c *WebSocketChannel) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *WebSocketChannel) setState(s State) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Connect 建立连接并启动读循环。ctx 结束或 Close 时返回的 channel 被关闭。
func (c *WebSocketChannel) Connect(ctx context.Context) (<-chan Utterance, error) {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return nil, ErrChannelClosed
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	// 检查与置为 Connecting 在同一把锁内完成，并发 Connect 只有一个能拨号
	c.state = StateConnecting
	fn := c.onStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(StateConnecting)
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{
		HTTPClient:   tlsutil.DialHTTPClient(dialTimeout),
		Subprotocols: c.cfg.Subprotocols,
		HTTPHeader:   c.cfg.Header,
	})
	if err != nil {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("voice: dial %s: %w", c.cfg.URL, err)
	}
	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	out := make(chan Utterance, c.cfg.Buffer)

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		_ = conn.CloseNow()
		return nil, ErrChannelClosed
	}
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.setState(StateConnected)
	c.logger.Info("voice channel connected", zap.String("url", c.cfg.URL))

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.readLoop(gctx, conn, out) })
	if c.cfg.KeepAlive > 0 {
		g.Go(func() error { return c.keepAlive(gctx, conn) })
	}

	go func() {
		err := g.Wait()
		cancel()
		_ = conn.CloseNow()
		close(out)

		if err != nil && !isClosure(err) && runCtx.Err() == nil {
			c.logger.Warn("voice channel stopped", zap.Error(err))
		}
		c.setState(StateDisconnected)
		c.logger.Info("voice channel disconnected")
		close(done)
	}()

	return out, nil
}

func (c *WebSocketChannel) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Utterance) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var ev agentEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("ignoring malformed voice event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case eventUserTranscript:
			if ev.UserTranscription != nil {
				if err := emit(ctx, out, types.RoleUser, ev.UserTranscription.UserTranscript); err != nil {
					return err
				}
			}
		case eventAgentResponse:
			if ev.AgentResponse != nil {
				if err := emit(ctx, out, types.RoleAssistant, ev.AgentResponse.AgentResponse); err != nil {
					return err
				}
			}
		case eventPing:
			var id int64
			if ev.Ping != nil {
				id = ev.Ping.EventID
			}
			if err := wsjson.Write(ctx, conn, pongEvent{Type: eventPong, EventID: id}); err != nil {
				return fmt.Errorf("voice: write pong: %w", err)
			}
		case eventMetadata:
			if ev.Metadata != nil {
				c.mu.Lock()
				c.conversationID = ev.Metadata.ConversationID
				c.mu.Unlock()
				c.logger.Info("voice conversation started", zap.String("conversation_id", ev.Metadata.ConversationID))
			}
		default:
			// 音频、VAD 分数等事件与文本会话无关
		}
	}
}

func (c *WebSocketChannel) keepAlive(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.KeepAlive)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("voice: keepalive: %w", err)
			}
		}
	}
}

func emit(ctx context.Context, out chan<- Utterance, role types.Role, text string) error {
	if text == "" {
		return nil
	}
	select {
	case out <- Utterance{Role: role, Text: text, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 正常关闭连接并等待读循环退出。之后不能再 Connect。
// 关闭握手失败只记录日志。
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	conn, cancel, done := c.conn, c.cancel, c.done
	connected := c.state == StateConnected
	c.mu.Unlock()

	if conn != nil && connected {
		if err := conn.Close(websocket.StatusNormalClosure, "closing"); err != nil && !isClosure(err) {
			c.logger.Debug("voice close handshake incomplete", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.state = StateClosed
	fn := c.onStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(StateClosed)
	}

	return nil
}

func isClosure(err error) bool {
	if err == nil {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}
