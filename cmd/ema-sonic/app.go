package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	orchestration "github.com/koscakluka/ema-sonic/core"
	"github.com/koscakluka/ema-sonic/core/audio"
	"github.com/koscakluka/ema-sonic/core/audio/miniaudio"
	"github.com/koscakluka/ema-sonic/core/audio/portaudio"
	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/playback"
	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/tools"
	"github.com/koscakluka/ema-sonic/core/tools/datetime"
	"github.com/koscakluka/ema-sonic/core/tools/knowledgebase"
	"github.com/koscakluka/ema-sonic/core/tools/weather"
	"github.com/koscakluka/ema-sonic/core/transport/websocket"
)

const reconnectDelay = 2 * time.Second

func run(ctx context.Context, cfg config) error {
	player := playback.NewPlayer()

	toolset, closeTools, err := buildTools(cfg)
	if err != nil {
		return err
	}
	defer closeTools()

	store, closeStore := buildHistoryStore(cfg)
	defer closeStore()

	device, err := openDevice(cfg.device, player)
	if err != nil {
		return err
	}
	defer device.close()

	c := &conversation{cfg: cfg, device: device}
	program := tea.NewProgram(newModel(c.sendText), tea.WithAltScreen(), tea.WithContext(ctx))
	c.program = program

	c.manager = orchestration.NewManager(
		websocket.NewDialer(cfg.url, dialOptions(cfg)...),
		orchestration.WithToolOrchestrator(tools.NewOrchestrator(
			tools.NewRegistry(toolset...),
			tools.WithTimeout(cfg.toolTimeout),
		)),
		orchestration.WithHistoryStore(store),
		orchestration.WithSessionDefaults(
			orchestration.WithInferenceConfiguration(protocol.InferenceConfiguration{
				MaxTokens:   cfg.maxTokens,
				TopP:        cfg.topP,
				Temperature: cfg.temperature,
			}),
			orchestration.WithAudioInputConfiguration(audioConfiguration(device.encodingInfo())),
			orchestration.WithAudioOutputConfiguration(audioConfiguration(player.EncodingInfo())),
			orchestration.WithVoice(cfg.voice),
			orchestration.WithPlayer(player),
		),
		orchestration.WithEventCallback(func(event events.Event) {
			program.Send(eventMsg{event: event})
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.run(runCtx)
	}()

	_, err = program.Run()
	cancel()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), orchestration.DefaultShutdownTimeout)
	defer cancelClose()
	if closeErr := c.manager.CloseAll(closeCtx); closeErr != nil {
		fmt.Fprintln(os.Stderr, "failed to close session:", closeErr)
	}
	wg.Wait()

	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func dialOptions(cfg config) []websocket.Option {
	opts := []websocket.Option{websocket.WithConnectTimeout(cfg.connectTimeout)}
	for key, value := range cfg.headers {
		opts = append(opts, websocket.WithHeader(key, value))
	}
	if token, ok := os.LookupEnv("EMA_SONIC_TOKEN"); ok {
		opts = append(opts, websocket.WithBearerToken(token))
	}
	return opts
}

// audioConfiguration describes base64 linear16 speech in the given format.
func audioConfiguration(info audio.EncodingInfo) protocol.AudioConfiguration {
	config := protocol.DefaultAudioInputConfiguration()
	config.SampleRateHertz = info.SampleRate
	config.SampleSizeBits = info.SampleSizeBits()
	config.ChannelCount = max(info.Channels, 1)
	return config
}

func buildTools(cfg config) ([]tools.Tool, func(), error) {
	toolset := []tools.Tool{datetime.New(), weather.New()}
	if cfg.qdrantURL == "" {
		return toolset, func() {}, nil
	}

	apiKey, _ := os.LookupEnv("QDRANT_API_KEY")
	client, err := knowledgebase.Dial(knowledgebase.Config{
		URL:            cfg.qdrantURL,
		APIKey:         apiKey,
		CollectionName: cfg.qdrantCollection,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to knowledge base: %w", err)
	}

	toolset = append(toolset, knowledgebase.New(client, cfg.qdrantCollection))
	return toolset, func() { _ = client.Close() }, nil
}

func buildHistoryStore(cfg config) (history.Store, func()) {
	if cfg.redisAddr == "" {
		return history.NewMemoryStore(history.WithMaxTurns(200)), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	store := history.NewRedisStore(client)
	return store, func() { _ = store.Close() }
}

// conversation keeps one session alive for the lifetime of the program,
// opening a new one after a fault when reconnecting is enabled.
type conversation struct {
	cfg     config
	device  audioDevice
	manager *orchestration.Manager
	program *tea.Program

	mu      sync.Mutex
	session *orchestration.Session
}

func (c *conversation) run(ctx context.Context) {
	for {
		session, err := c.start(ctx)
		if err != nil {
			c.program.Send(errMsg{err: err})
		} else {
			c.stream(ctx, session)
		}

		if ctx.Err() != nil || !c.cfg.reconnect {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		c.program.Send(statusMsg("reconnecting"))
	}
}

func (c *conversation) start(ctx context.Context) (*orchestration.Session, error) {
	session, err := c.manager.Create(ctx)
	if err != nil {
		return nil, err
	}

	if err := session.SetupPromptStart(); err != nil {
		session.ForceClose()
		return nil, fmt.Errorf("failed to start prompt: %w", err)
	}
	if err := session.SetupSystemPrompt(c.cfg.systemPrompt); err != nil {
		session.ForceClose()
		return nil, fmt.Errorf("failed to send system prompt: %w", err)
	}
	if err := session.SetupStartAudio(nil); err != nil {
		session.ForceClose()
		return nil, fmt.Errorf("failed to start audio: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

// stream feeds the microphone into session until it closes or ctx is done.
func (c *conversation) stream(ctx context.Context, session *orchestration.Session) {
	captureCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-captureCtx.Done():
		}
	}()

	err := c.device.capture(captureCtx, func(chunk []byte) {
		if err := session.StreamAudio(chunk); err != nil && !errors.Is(err, orchestration.ErrSessionClosed) {
			c.program.Send(errMsg{err: err})
		}
	})
	if err != nil {
		c.program.Send(errMsg{err: err})
	}

	<-captureCtx.Done()
}

func (c *conversation) sendText(text string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return errors.New("not connected")
	}
	return session.SendText(text)
}

type audioDevice interface {
	// capture streams microphone chunks to onAudio until ctx is done.
	capture(ctx context.Context, onAudio func(chunk []byte)) error
	encodingInfo() audio.EncodingInfo
	close()
}

func openDevice(backend string, player *playback.Player) (audioDevice, error) {
	switch backend {
	case "miniaudio":
		client, err := miniaudio.NewClient(player, miniaudio.WithPlaybackEncoding(player.EncodingInfo()))
		if err != nil {
			return nil, err
		}
		return miniaudioDevice{client: client}, nil
	case "portaudio":
		client, err := portaudio.NewClient(player, 512, player.EncodingInfo())
		if err != nil {
			return nil, err
		}
		return portaudioDevice{client: client}, nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}

type miniaudioDevice struct {
	client *miniaudio.Client
}

func (d miniaudioDevice) capture(ctx context.Context, onAudio func(chunk []byte)) error {
	if err := d.client.StartCapture(onAudio); err != nil {
		return err
	}
	<-ctx.Done()
	return d.client.StopCapture()
}

func (d miniaudioDevice) encodingInfo() audio.EncodingInfo { return d.client.CaptureEncodingInfo() }

func (d miniaudioDevice) close() { d.client.Close() }

type portaudioDevice struct {
	client *portaudio.Client
}

func (d portaudioDevice) capture(ctx context.Context, onAudio func(chunk []byte)) error {
	return d.client.Stream(ctx, onAudio)
}

func (d portaudioDevice) encodingInfo() audio.EncodingInfo { return d.client.EncodingInfo() }

func (d portaudioDevice) close() { d.client.Close() }
