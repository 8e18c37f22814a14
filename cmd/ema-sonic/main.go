// Command ema-sonic talks to a speech-to-speech model from the terminal:
// the microphone streams to the model, its speech plays through the
// speakers and the transcript shows up in a terminal UI.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type config struct {
	url            string
	headers        map[string]string
	connectTimeout time.Duration

	voice        string
	systemPrompt string
	device       string
	reconnect    bool
	toolTimeout  time.Duration

	maxTokens   int
	topP        float64
	temperature float64

	redisAddr        string
	qdrantURL        string
	qdrantCollection string
}

const defaultSystemPrompt = "You are a friendly assistant. The user and you will engage in a spoken dialog " +
	"exchanging the transcripts of a natural real-time conversation. Keep your responses short, " +
	"generally two or three sentences for chatty scenarios."

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config{}

	cmd := &cobra.Command{
		Use:          "ema-sonic",
		Short:        "Talk to a speech-to-speech model from the terminal",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.url == "" {
				if url, ok := os.LookupEnv("EMA_SONIC_URL"); ok {
					cfg.url = url
				}
			}
			if cfg.url == "" {
				return errors.New("no model endpoint, set --url or EMA_SONIC_URL")
			}
			if cfg.redisAddr == "" {
				if addr, ok := os.LookupEnv("REDIS_ADDR"); ok {
					cfg.redisAddr = addr
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.url, "url", "", "websocket endpoint of the model (env EMA_SONIC_URL)")
	flags.StringToStringVar(&cfg.headers, "header", nil, "extra websocket upgrade headers, key=value")
	flags.DurationVar(&cfg.connectTimeout, "connect-timeout", 10*time.Second, "how long to wait for the model endpoint")
	flags.StringVar(&cfg.voice, "voice", "matthew", "voice the model speaks with")
	flags.StringVar(&cfg.systemPrompt, "system-prompt", defaultSystemPrompt, "system prompt sent before audio starts")
	flags.IntVar(&cfg.maxTokens, "max-tokens", 1024, "maximum tokens per model response")
	flags.Float64Var(&cfg.topP, "top-p", 0.9, "nucleus sampling threshold")
	flags.Float64Var(&cfg.temperature, "temperature", 0.7, "sampling temperature")
	flags.StringVar(&cfg.device, "device", "miniaudio", "audio backend, miniaudio or portaudio")
	flags.BoolVar(&cfg.reconnect, "reconnect", false, "open a new session when the connection fails")
	flags.DurationVar(&cfg.toolTimeout, "tool-timeout", 5*time.Second, "upper bound for a single tool call")
	flags.StringVar(&cfg.redisAddr, "redis-addr", "", "persist conversation history in redis (env REDIS_ADDR)")
	flags.StringVar(&cfg.qdrantURL, "qdrant-url", "", "enable the knowledge base tool backed by this qdrant instance")
	flags.StringVar(&cfg.qdrantCollection, "qdrant-collection", "knowledge", "qdrant collection the knowledge base reads")

	return cmd
}
