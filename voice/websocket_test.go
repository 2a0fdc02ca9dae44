package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/naya/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newAgentServer 启动一个模拟语音代理，script 在握手后执行
func newAgentServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		script(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(t *testing.T, out <-chan Utterance) []Utterance {
	t.Helper()
	var got []Utterance
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-timeout:
			t.Fatal("utterance channel was not closed")
		}
	}
}

func TestWebSocketChannel_TranslatesAgentEvents(t *testing.T) {
	pongs := make(chan pongEvent, 1)
	url := newAgentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":                                   "conversation_initiation_metadata",
			"conversation_initiation_metadata_event": map[string]any{"conversation_id": "conv-1"},
		})
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":       "ping",
			"ping_event": map[string]any{"event_id": 7, "ping_ms": 20},
		})
		var p pongEvent
		if err := wsjson.Read(ctx, conn, &p); err == nil {
			pongs <- p
		}
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":                     "user_transcript",
			"user_transcription_event": map[string]any{"user_transcript": "Halo"},
		})
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "audio", "audio_event": map[string]any{"audio_base_64": "AAAA"}})
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":                     "user_transcript",
			"user_transcription_event": map[string]any{"user_transcript": ""},
		})
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":                 "agent_response",
			"agent_response_event": map[string]any{"agent_response": "Hai! Ada yang bisa saya bantu?"},
		})
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})

	ch := NewWebSocketChannel(url, zap.NewNop(), WithKeepAlive(0))
	var mu sync.Mutex
	var states []State
	ch.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	before := time.Now()
	out, err := ch.Connect(context.Background())
	require.NoError(t, err)

	got := collect(t, out)
	require.Len(t, got, 2)
	assert.Equal(t, types.RoleUser, got[0].Role)
	assert.Equal(t, "Halo", got[0].Text)
	assert.Equal(t, types.RoleAssistant, got[1].Role)
	assert.Equal(t, "Hai! Ada yang bisa saya bantu?", got[1].Text)
	assert.False(t, got[0].At.Before(before))

	select {
	case p := <-pongs:
		assert.Equal(t, pongEvent{Type: "pong", EventID: 7}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
	assert.Equal(t, "conv-1", ch.ConversationID())

	assert.Eventually(t, func() bool { return ch.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
	mu.Unlock()
}

func TestWebSocketChannel_CloseStopsReader(t *testing.T) {
	url := newAgentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	ch := NewWebSocketChannel(url, zap.NewNop(), WithKeepAlive(0))
	out, err := ch.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, ch.State())

	_, err = ch.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	require.NoError(t, ch.Close())
	assert.Empty(t, collect(t, out))
	assert.Equal(t, StateClosed, ch.State())

	require.NoError(t, ch.Close())
	_, err = ch.Connect(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestWebSocketChannel_ContextCancelClosesChannel(t *testing.T) {
	url := newAgentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := NewWebSocketChannel(url, zap.NewNop(), WithKeepAlive(0))
	out, err := ch.Connect(ctx)
	require.NoError(t, err)

	cancel()
	assert.Empty(t, collect(t, out))
	assert.Eventually(t, func() bool { return ch.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketChannel_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ch := NewWebSocketChannel(url, nil)
	_, err := ch.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestWebSocketChannel_ConcurrentConnectDialsOnce(t *testing.T) {
	var dials atomic.Int32
	url := newAgentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		dials.Add(1)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	ch := NewWebSocketChannel(url, zap.NewNop(), WithKeepAlive(0))
	const n = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		errs      = make(chan error, n)
		connected = make(chan (<-chan Utterance), n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := ch.Connect(context.Background())
			if err != nil {
				errs <- err
				return
			}
			connected <- out
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	close(connected)

	require.Len(t, connected, 1)
	for err := range errs {
		assert.ErrorIs(t, err, ErrAlreadyConnected)
	}
	assert.Eventually(t, func() bool { return dials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	collect(t, <-connected)
	assert.Equal(t, int32(1), dials.Load())
}

func TestWebSocketChannel_KeepAlive(t *testing.T) {
	url := newAgentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		// 读循环负责回应控制帧
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	ch := NewWebSocketChannel(url, zap.NewNop(), WithKeepAlive(20*time.Millisecond))
	out, err := ch.Connect(context.Background())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, ch.State())

	require.NoError(t, ch.Close())
	collect(t, out)
}
