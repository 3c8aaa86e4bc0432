package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Store keeps operator-entered settings in a dotenv file for the lifetime of
// one process run. The file is written when a session starts and removed on
// shutdown, so credentials never outlive the run that entered them.
type Store struct {
	path   string
	logger *zap.SugaredLogger
}

func NewStore(path string, logger *zap.SugaredLogger) *Store {
	return &Store{path: path, logger: logger}
}

// Save writes the settings a session was started with. Only values the
// operator actually entered end up in the file.
func (s *Store) Save(cfg *Config) error {
	values := map[string]string{
		"CHAT_SERVICE":       cfg.ChatService,
		"CHAT_MODEL":         cfg.ChatModel,
		"IMAGE_MODEL":        cfg.ImageModel,
		"IMAGE_STYLE_PROMPT": cfg.ImageStylePrompt,
	}
	if cfg.GeminiAPIKey != "" {
		values["GEMINI_API"] = cfg.GeminiAPIKey
	}
	if cfg.OpenAIAPIKey != "" {
		values["OPENAI_API_KEY"] = cfg.OpenAIAPIKey
	}
	if cfg.ReplicateAPIKey != "" {
		values["REPLICATE_API"] = cfg.ReplicateAPIKey
	}
	if cfg.InitialPrompt != "" {
		values["INITIAL_PROMPT"] = cfg.InitialPrompt
	}
	return godotenv.Write(values, s.path)
}

// Release removes the settings file. Safe to call more than once and when
// nothing was saved.
func (s *Store) Release() {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnw("Failed to remove settings file", "path", s.path, "error", err)
		return
	}
	if err == nil {
		s.logger.Infow("Settings file removed", "path", s.path)
	}
}
