package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"adventure/internal/adapter/gemini"
	"adventure/internal/adapter/openai"
	"adventure/internal/adapter/replicate"
	"adventure/internal/adapter/translate"
	"adventure/internal/config"
	"adventure/internal/service/history"
	"adventure/internal/service/illustration"
	"adventure/internal/service/ingest"
	"adventure/internal/service/pipeline"
	"adventure/internal/service/session"
)

const maxUploadBytes = 128 << 20

// TurnRunner is the slice of the pipeline the handlers need.
type TurnRunner interface {
	Submit(ctx context.Context, utterance string) (*pipeline.Result, error)
	Transcript() []session.Turn
}

// Server is the single-page UI: a setup form until the session starts, then
// the chat view backed by the turn pipeline.
type Server struct {
	cfg    *config.Config
	store  *config.Store
	reader *ingest.Reader
	hub    *Hub
	logger *zap.SugaredLogger

	mu        sync.Mutex
	pipe      TurnRunner
	closeChat func() error
}

func NewServer(cfg *config.Config, store *config.Store, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		reader: ingest.NewReader(logger),
		hub:    NewHub(logger),
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/illustration", s.handleIllustration)
	mux.HandleFunc("/ws", s.hub.Serve)
	return mux
}

// Close tears the live chat backend down, if one was started.
func (s *Server) Close() {
	s.mu.Lock()
	closeChat := s.closeChat
	s.closeChat = nil
	s.mu.Unlock()
	if closeChat != nil {
		if err := closeChat(); err != nil {
			s.logger.Warnw("Failed to close chat backend", "error", err)
		}
	}
}

func (s *Server) runner() TurnRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.runner() == nil {
		if err := setupTmpl.Execute(w, s.cfg); err != nil {
			s.logger.Errorw("Failed to render setup page", "error", err)
		}
		return
	}
	if err := chatTmpl.Execute(w, nil); err != nil {
		s.logger.Errorw("Failed to render chat page", "error", err)
	}
}

// handleStart ingests the uploaded context documents, stores the entered
// settings and bootstraps the session. Starting again replaces the previous
// session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "bad upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.applyFormSettings(r)
	if err := s.store.Save(s.cfg); err != nil {
		// Non-fatal: the session can run without the settings file.
		s.logger.Warnw("Failed to save settings", "error", err)
	}

	docs, err := collectDocuments(r.MultipartForm)
	if err != nil {
		http.Error(w, "bad upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	blobs := s.reader.ExtractAll(docs)

	backend, closeChat, err := s.buildChatBackend(r.Context())
	if err != nil {
		s.logger.Errorw("Chat backend unavailable", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	sess, err := session.NewBootstrapper(backend, s.logger).
		Bootstrap(r.Context(), s.cfg.SystemInstruction, s.cfg.InitialPrompt, blobs)
	if err != nil {
		if closeChat != nil {
			_ = closeChat()
		}
		s.logger.Errorw("Bootstrap failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artist := illustration.NewArtist(
		replicate.New(s.cfg.ReplicateAPIKey, s.logger),
		s.cfg.ImageModel,
		s.cfg.ImageStylePrompt,
		s.cfg.IllustrationPath,
		s.cfg.OpenViewer,
		s.logger,
	)
	pipe := pipeline.New(
		sess,
		translate.New(),
		illustration.Policy{Cadence: s.cfg.IllustrationCadence},
		artist,
		history.NewStore(s.cfg.HistoryPath),
		s.cfg.TargetLang,
		pipeline.Timeouts{
			Chat:      s.cfg.ChatTimeout,
			Translate: s.cfg.TranslateTimeout,
			Image:     s.cfg.ImageTimeout,
		},
		s.logger,
	)

	s.mu.Lock()
	prevClose := s.closeChat
	s.pipe = pipe
	s.closeChat = closeChat
	s.mu.Unlock()
	if prevClose != nil {
		_ = prevClose()
	}

	s.logger.Infow("Session started", "session", sess.ID, "documents", len(docs))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pipe := s.runner()
	if pipe == nil {
		writeJSONError(w, http.StatusConflict, "session not started")
		return
	}

	utterance := r.FormValue("message")
	result, err := pipe.Submit(r.Context(), utterance)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEmptyUtterance):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pipeline.ErrTurnInFlight):
			writeJSONError(w, http.StatusConflict, err.Error())
		default:
			writeJSONError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	avatar := session.AvatarGameMaster
	imageURL := ""
	if result.Illustrated {
		avatar = session.AvatarIllustrated
		imageURL = fmt.Sprintf("/illustration?v=%d", result.TurnNumber)
	}
	s.hub.Broadcast(Event{Type: "turn", Turn: &session.Turn{Role: session.RoleUser, Content: strings.TrimSpace(utterance), Avatar: session.AvatarPlayer}})
	s.hub.Broadcast(Event{Type: "turn", Turn: &session.Turn{Role: session.RoleAssistant, Content: result.Reply, Avatar: avatar}})
	if result.Illustrated {
		s.hub.Broadcast(Event{Type: "illustration", ImageURL: imageURL})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":       result.Reply,
		"turnNumber":  result.TurnNumber,
		"illustrated": result.Illustrated,
		"imageUrl":    imageURL,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := []session.Turn{}
	if pipe := s.runner(); pipe != nil {
		turns = pipe.Transcript()
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleIllustration(w http.ResponseWriter, r *http.Request) {
	// One fixed artifact, overwritten per render; never let the browser cache it.
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, s.cfg.IllustrationPath)
}

// applyFormSettings overrides the configuration with the non-empty fields the
// operator entered, so the form can be left partially blank to keep .env or
// default values.
func (s *Server) applyFormSettings(r *http.Request) {
	set := func(dst *string, field string) {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			*dst = v
		}
	}
	set(&s.cfg.GeminiAPIKey, "gemini_api_key")
	set(&s.cfg.OpenAIAPIKey, "openai_api_key")
	set(&s.cfg.ReplicateAPIKey, "replicate_api_key")
	set(&s.cfg.ImageStylePrompt, "image_style_prompt")
	set(&s.cfg.ImageModel, "image_model")
	set(&s.cfg.ChatModel, "chat_model")
	set(&s.cfg.InitialPrompt, "initial_prompt")
}

func (s *Server) buildChatBackend(ctx context.Context) (session.ChatBackend, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.ChatService)) {
	case "openai":
		backend, err := openai.NewBackend(s.cfg.OpenAIAPIKey, s.cfg.ChatModel, s.logger)
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil
	default: // gemini
		backend, err := gemini.NewBackend(ctx, s.cfg.GeminiAPIKey, s.cfg.ChatModel, s.logger)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}
}

func collectDocuments(form *multipart.Form) ([]ingest.Document, error) {
	if form == nil {
		return nil, nil
	}
	var docs []ingest.Document
	for _, header := range form.File["context_files"] {
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, err
		}
		docs = append(docs, ingest.Document{
			Name:      header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Data:      data,
		})
	}
	return docs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
