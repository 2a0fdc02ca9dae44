package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/history"
	"github.com/BaSui01/naya/session"
	"github.com/BaSui01/naya/types"
	"github.com/BaSui01/naya/voice"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 chat 命令：终端里的 Naya
// =============================================================================

// chatOptions 命令行覆盖项
type chatOptions struct {
	url   string
	key   string
	voice bool
}

// chatApp 一个终端会话：Session + 持久化 + 可选语音
type chatApp struct {
	sess   *session.Session
	store  history.Store
	out    *transcript
	logger *zap.Logger
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	url := fs.String("url", "", "Relay endpoint (default: session.relay_url)")
	key := fs.String("key", "", "Publishable key sent as Bearer token")
	withVoice := fs.Bool("voice", false, "Connect the voice agent (voice.agent_url)")
	verbose := fs.Bool("verbose", false, "Log at info level to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// 终端占用 stdout，日志只写 stderr
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Log.Format = "console"
	if !*verbose {
		cfg.Log.Level = "warn"
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	app, err := newChatApp(ctx, cfg, os.Stdout, logger, chatOptions{url: *url, key: *key, voice: *withVoice})
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Run(ctx, os.Stdin)
}

func newChatApp(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger, opts chatOptions) (*chatApp, error) {
	relayURL := cfg.Session.RelayURL
	if opts.url != "" {
		relayURL = opts.url
	}
	key := cfg.Session.PublishableKey
	if opts.key != "" {
		key = opts.key
	}

	client, err := session.NewRelayClient(session.ClientConfig{
		URL:            relayURL,
		PublishableKey: key,
		HeaderTimeout:  cfg.Upstream.HeaderTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := history.NewStore(ctx, cfg, logger, history.WithCounter(history.NewTokenCounter("", logger)))
	if err != nil {
		return nil, fmt.Errorf("open chat history: %w", err)
	}
	t := &transcript{w: out}
	conv := session.NewConversation(session.WithDedupWindow(cfg.Session.DedupWindow))

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithConversation(conv),
	}
	if store != nil {
		sessOpts = append(sessOpts, session.WithHistory(history.NewRecorder(store, logger,
			history.WithLimit(cfg.History.Limit),
			history.WithTimeout(cfg.History.Timeout))))
	}

	sess := session.NewSession(session.Config{
		Apology:       cfg.Session.Apology,
		DedupWindow:   cfg.Session.DedupWindow,
		SpeechEnabled: cfg.Session.SpeechEnabled,
	}, client, sessOpts...)

	app := &chatApp{sess: sess, store: store, out: t, logger: logger}

	if cfg.Session.RestoreHistory && sess.Restore(ctx) > 0 {
		t.replay(conv.Messages())
	}
	conv.Subscribe(t.observe)

	if opts.voice {
		if cfg.Voice.AgentURL == "" {
			_ = app.Close()
			return nil, errors.New("voice.agent_url is not configured")
		}
		ch := voice.NewWebSocketChannel(cfg.Voice.AgentURL, logger, voice.WithKeepAlive(cfg.Voice.KeepAlive))
		ch.OnStateChange(func(st voice.State) {
			logger.Info("voice state changed", zap.String("state", string(st)))
		})
		if err := sess.AttachVoice(ctx, ch); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("connect voice agent: %w", err)
		}
		t.printf("(%s)\n", sess.AvatarState().Label())
	}
	return app, nil
}

// Run 读取输入直到 EOF、/quit 或 ctx 取消
func (a *chatApp) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.out.printf("Naya: %s\n", "Halo! Saya Naya, asisten wisata Sidoarjo. Ketik /help untuk bantuan.")
	for {
		a.out.printf("> ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			a.out.printf("\n")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			a.out.printf("\n")
			return nil
		}

		switch cmd := strings.TrimSpace(line); cmd {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			a.out.printf("/reset  mulai percakapan baru\n/quit   keluar\n")
		case "/reset":
			a.sess.Reset(ctx)
			a.out.printf("(percakapan dihapus)\n")
		default:
			if err := a.send(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

// send 驱动一个回合。回合错误已在对话中以致歉消息呈现，这里只补充原因；
// 只有 ctx 取消会中断 REPL。
func (a *chatApp) send(ctx context.Context, text string) error {
	a.out.expect(text)
	reply, err := a.sess.Send(ctx, text)
	switch {
	case err == nil && reply == "":
		a.out.printf("(tidak ada jawaban)\n")
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		a.out.printf("\n")
		return nil
	default:
		if e, ok := types.AsError(err); ok {
			a.out.printf("[%s] %s\n", e.Code, e.Message)
		} else {
			a.out.printf("[%s] %v\n", types.ErrInternalError, err)
		}
	}
	return nil
}

// Close 断开语音并关闭存储
func (a *chatApp) Close() error {
	err := a.sess.Close()
	if a.store != nil {
		err = errors.Join(err, a.store.Close())
	}
	return err
}

// =============================================================================
// 📝 transcript 把对话事件渲染成终端文本
// =============================================================================

type transcript struct {
	mu        sync.Mutex
	w         io.Writer
	streaming string // 正在输出的助手消息
	started   bool   // 已经打印了 "Naya: " 前缀
	typed     string // 刚输入的用户消息，不再回显
}

func (t *transcript) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

func (t *transcript) expect(text string) {
	t.mu.Lock()
	t.typed = strings.TrimSpace(text)
	t.mu.Unlock()
}

// replay 打印恢复的历史
func (t *transcript) replay(msgs []types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		label := "Naya"
		if m.Role == types.RoleUser {
			label = "Kamu"
		}
		fmt.Fprintf(t.w, "%s: %s\n", label, m.Content)
	}
	fmt.Fprintln(t.w, "--")
}

func (t *transcript) observe(ev session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := ev.Message
	switch ev.Kind {
	case session.EventAppended:
		switch {
		case m.Role == types.RoleAssistant && m.Content == "":
			t.streaming, t.started = m.ID, false
		case m.Role == types.RoleUser && t.typed != "" && m.Content == t.typed:
			t.typed = ""
		case m.Role == types.RoleUser:
			fmt.Fprintf(t.w, "Kamu (suara): %s\n", m.Content)
		default:
			fmt.Fprintf(t.w, "Naya: %s\n", m.Content)
		}
	case session.EventUpdated:
		if m.ID != t.streaming {
			return
		}
		if !t.started {
			fmt.Fprint(t.w, "Naya: ")
			t.started = true
		}
		fmt.Fprint(t.w, ev.Fragment)
	case session.EventSealed:
		if m.ID == t.streaming {
			if t.started {
				fmt.Fprintln(t.w)
			}
			t.streaming, t.started = "", false
		}
	case session.EventRemoved:
		if m.ID == t.streaming {
			t.streaming, t.started = "", false
		}
	}
}
