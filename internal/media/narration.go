package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillsmith/coursegen/config"
	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/store"
)

const narrationSystemPrompt = `You turn written course content into a narration script for audio
playback. Rewrite the material as natural spoken language: short sentences,
no markdown, no headings read aloud, smooth transitions between topics.
Target 2-4 minutes of speech. Respond with the script text only.`

// Synthesizer generates narration scripts and synthesizes audio for module
// content. It implements the orchestrator's Narrator.
type Synthesizer struct {
	provider    core.LLMProvider
	store       *store.Store
	cfg         config.MediaConfig
	scriptModel string
	speechModel string
	logger      *log.Logger
}

func NewSynthesizer(provider core.LLMProvider, st *store.Store, cfg config.MediaConfig, scriptModel, speechModel string) *Synthesizer {
	return &Synthesizer{
		provider:    provider,
		store:       st,
		cfg:         cfg,
		scriptModel: scriptModel,
		speechModel: speechModel,
		logger:      log.New(log.Writer(), "[MEDIA] ", log.LstdFlags),
	}
}

// NarrateModule writes a media session row, generates the script, renders
// audio and stores the artifact under the configured media dir.
func (s *Synthesizer) NarrateModule(ctx context.Context, content core.ModuleContent) (string, error) {
	sessionID, err := s.store.SaveMediaSession(ctx, store.MediaSessionRecord{
		ContentID: content.ID,
		Voice:     s.cfg.Voice,
		Status:    "pending",
	})
	if err != nil {
		return "", fmt.Errorf("create media session: %w", err)
	}

	fail := func(err error) (string, error) {
		_, _ = s.store.SaveMediaSession(ctx, store.MediaSessionRecord{
			ID:        sessionID,
			ContentID: content.ID,
			Voice:     s.cfg.Voice,
			Status:    "failed",
		})
		return sessionID, err
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Module: %s\n\n", content.Title)
	for _, sec := range content.Sections {
		fmt.Fprintf(&body, "%s\n%s\n\n", sec.Heading, sec.Body)
	}

	script, err := s.provider.Generate(ctx, narrationSystemPrompt, body.String(), s.scriptModel)
	if err != nil {
		return fail(fmt.Errorf("generate narration script: %w", err))
	}

	audio, err := s.provider.Speak(ctx, script, s.cfg.Voice, s.speechModel)
	if err != nil {
		return fail(fmt.Errorf("synthesize speech: %w", err))
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fail(fmt.Errorf("create media dir: %w", err))
	}
	path := filepath.Join(s.cfg.Dir, sessionID+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fail(fmt.Errorf("write audio: %w", err))
	}

	if _, err := s.store.SaveMediaSession(ctx, store.MediaSessionRecord{
		ID:        sessionID,
		ContentID: content.ID,
		Script:    script,
		AudioURI:  "file://" + path,
		Voice:     s.cfg.Voice,
		Status:    "completed",
	}); err != nil {
		return sessionID, fmt.Errorf("finalize media session: %w", err)
	}
	s.logger.Printf("narrated content %s -> %s (%d bytes)", content.ID, path, len(audio))
	return sessionID, nil
}
