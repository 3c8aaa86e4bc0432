package config

import (
	"flag"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` // verbose logging

	// Chat backend
	ChatService       string `env:"CHAT_SERVICE"`       // gemini|openai
	ChatModel         string `env:"CHAT_MODEL"`         // chat model identifier
	GeminiAPIKey      string `env:"GEMINI_API"`         // Gemini API key
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`     // OpenAI API key (only for CHAT_SERVICE=openai)
	SystemInstruction string `env:"SYSTEM_INSTRUCTION"` // who the model is for the whole session
	InitialPrompt     string `env:"INITIAL_PROMPT"`     // first user message, appended after the context documents

	// Translation: the stored transcript keeps the original language, the
	// translated text only feeds illustration prompts.
	TargetLang string `env:"TARGET_LANG"`

	// Illustration
	ReplicateAPIKey     string `env:"REPLICATE_API"`        // Replicate API token
	ImageModel          string `env:"IMAGE_MODEL"`          // text-to-image model, owner/name
	ImageStylePrompt    string `env:"IMAGE_STYLE_PROMPT"`   // prefix prepended to the translated reply
	IllustrationCadence int    `env:"ILLUSTRATION_CADENCE"` // render every Nth assistant turn
	IllustrationPath    string `env:"ILLUSTRATION_PATH"`    // fixed artifact path, overwritten each render
	OpenViewer          bool   `env:"OPEN_VIEWER"`          // open the rendered image in a local viewer

	// Persistence
	HistoryPath string `env:"HISTORY_PATH"` // transcript snapshot, fully rewritten each turn

	// Ephemeral settings store: operator-entered settings are written here on
	// session start and the file is removed on shutdown.
	SettingsPath string `env:"SETTINGS_PATH"`

	// Web UI
	BindAddr string `env:"BIND_ADDR"`

	// Per-call deadlines for the external backends
	ChatTimeout      time.Duration `env:"CHAT_TIMEOUT"`
	TranslateTimeout time.Duration `env:"TRANSLATE_TIMEOUT"`
	ImageTimeout     time.Duration `env:"IMAGE_TIMEOUT"`
}

// Defaults returns the configuration with preset values. They are overridden
// by .env, environment variables and CLI flags, in that order.
func Defaults() *Config {
	return &Config{
		DebugMode:           false,
		ChatService:         "gemini",
		ChatModel:           "gemini-1.5-pro",
		SystemInstruction:   "Game Master for a tabletop RPG session.",
		TargetLang:          "en",
		ImageModel:          "black-forest-labs/flux-schnell",
		ImageStylePrompt:    "Fantasy-like scene, warm and bright colors, not photorealistic.",
		IllustrationCadence: 3,
		IllustrationPath:    "images/illustration.jpg",
		OpenViewer:          false,
		HistoryPath:         "history.json",
		SettingsPath:        ".env",
		BindAddr:            "127.0.0.1:8080",
		ChatTimeout:         120 * time.Second,
		TranslateTimeout:    15 * time.Second,
		ImageTimeout:        180 * time.Second,
	}
}

// NewConfig loads the application configuration.
func NewConfig() *Config {
	_ = godotenv.Load()

	// Start from defaults, then override with .env/environment and flags
	cfg := Defaults()
	_ = env.Parse(cfg)

	flag.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "enable debug logging")
	flag.StringVar(&cfg.ChatService, "chat-service", cfg.ChatService, "chat backend: gemini|openai")
	flag.StringVar(&cfg.ChatModel, "chat-model", cfg.ChatModel, "chat model identifier")
	flag.StringVar(&cfg.SystemInstruction, "system-instruction", cfg.SystemInstruction, "system instruction for the chat model")
	flag.StringVar(&cfg.TargetLang, "target-lang", cfg.TargetLang, "language the reply is translated to for illustration prompts")
	flag.StringVar(&cfg.ImageModel, "image-model", cfg.ImageModel, "text-to-image model (owner/name)")
	flag.StringVar(&cfg.ImageStylePrompt, "image-style-prompt", cfg.ImageStylePrompt, "style prefix for illustration prompts, in the target language")
	flag.IntVar(&cfg.IllustrationCadence, "illustration-cadence", cfg.IllustrationCadence, "render an illustration every Nth assistant turn")
	flag.StringVar(&cfg.IllustrationPath, "illustration-path", cfg.IllustrationPath, "path of the rendered illustration, overwritten each time")
	flag.BoolVar(&cfg.OpenViewer, "open-viewer", cfg.OpenViewer, "open each rendered illustration in a local viewer")
	flag.StringVar(&cfg.HistoryPath, "history-path", cfg.HistoryPath, "path of the transcript snapshot")
	flag.StringVar(&cfg.SettingsPath, "settings-path", cfg.SettingsPath, "path of the ephemeral settings file")
	flag.StringVar(&cfg.BindAddr, "bind-addr", cfg.BindAddr, "address the web UI listens on")
	flag.DurationVar(&cfg.ChatTimeout, "chat-timeout", cfg.ChatTimeout, "deadline for one chat backend call")
	flag.DurationVar(&cfg.TranslateTimeout, "translate-timeout", cfg.TranslateTimeout, "deadline for one translation call")
	flag.DurationVar(&cfg.ImageTimeout, "image-timeout", cfg.ImageTimeout, "deadline for one image generation call")
	flag.Parse()

	return cfg
}
