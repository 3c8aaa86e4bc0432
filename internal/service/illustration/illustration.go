package illustration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
)

// Generator renders one image for a text prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) ([]byte, error)
}

// Policy decides which completed assistant turns get an illustration:
// every Nth one. Zero or negative cadence disables illustration.
type Policy struct {
	Cadence int
}

func (p Policy) Due(completedTurns int) bool {
	return p.Cadence > 0 && completedTurns > 0 && completedTurns%p.Cadence == 0
}

// BuildPrompt joins the configured style prefix with the scene description.
func BuildPrompt(style, scene string) string {
	if style == "" {
		return scene
	}
	return fmt.Sprintf("%s: %s", style, scene)
}

// Artist turns a scene description into a rendered image on disk. The
// artifact lives at one fixed path and is overwritten on every render.
type Artist struct {
	generator  Generator
	model      string
	style      string
	path       string
	openViewer bool
	logger     *zap.SugaredLogger
}

func NewArtist(generator Generator, model, style, path string, openViewer bool, logger *zap.SugaredLogger) *Artist {
	return &Artist{
		generator:  generator,
		model:      model,
		style:      style,
		path:       path,
		openViewer: openViewer,
		logger:     logger,
	}
}

func (a *Artist) Path() string { return a.path }

// Render generates an illustration for the scene and writes it to the fixed
// artifact path. Returns the path of the written file.
func (a *Artist) Render(ctx context.Context, scene string) (string, error) {
	prompt := BuildPrompt(a.style, scene)
	a.logger.Infow("Rendering illustration", "model", a.model)

	data, err := a.generator.Generate(ctx, a.model, prompt)
	if err != nil {
		return "", fmt.Errorf("illustration: %w", err)
	}

	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("illustration: %w", err)
		}
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return "", fmt.Errorf("illustration: write artifact: %w", err)
	}

	if a.openViewer {
		if err := openInViewer(a.path); err != nil {
			a.logger.Warnw("Failed to open illustration viewer", "path", a.path, "error", err)
		}
	}
	return a.path, nil
}

// openInViewer hands the artifact to the platform default viewer.
func openInViewer(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", abs).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", abs).Start()
	default:
		return exec.Command("xdg-open", abs).Start()
	}
}
