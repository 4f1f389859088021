package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/skillsmith/coursegen/config"
	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/store"
)

type speechProvider struct {
	script   string
	audio    []byte
	speakErr error
}

func (p *speechProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	return p.script, nil
}

func (p *speechProvider) GenerateWithTokens(ctx context.Context, systemPrompt, userPrompt, model string) (string, int64, int64, error) {
	return p.script, 0, 0, nil
}

func (p *speechProvider) ChatWithTools(ctx context.Context, model string, messages []core.ChatMessage, tools []core.ToolDefinition) (core.ChatResponse, error) {
	return core.ChatResponse{Content: p.script}, nil
}

func (p *speechProvider) Speak(ctx context.Context, input, voice, model string) ([]byte, error) {
	if p.speakErr != nil {
		return nil, p.speakErr
	}
	return p.audio, nil
}

func (p *speechProvider) GetModelInfo(model string) (core.ModelInfo, error) {
	return core.ModelInfo{Name: model, APIName: model}, nil
}

func (p *speechProvider) CalculateCost(model string, promptTokens, completionTokens int64) float64 {
	return 0
}

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &store.Store{DB: db}, mock
}

func TestNarrateModuleWritesAudio(t *testing.T) {
	st, mock := newMockStore(t)
	dir := t.TempDir()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO media_sessions")).
		WithArgs("content-1", "", "", "alloy", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))

	wantPath := filepath.Join(dir, "sess-1.mp3")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE media_sessions SET")).
		WithArgs("sess-1", "Welcome to the module.", "file://"+wantPath, "alloy", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	provider := &speechProvider{script: "Welcome to the module.", audio: []byte("mp3-bytes")}
	synth := NewSynthesizer(provider, st, config.MediaConfig{Enabled: true, Dir: dir, Voice: "alloy"}, "content-model", "speech-model")

	sessionID, err := synth.NarrateModule(context.Background(), core.ModuleContent{
		ID:    "content-1",
		Title: "SQL Basics",
		Sections: []core.ContentSection{
			{Heading: "Joins", Body: "Joins combine rows from two tables."},
		},
	})
	if err != nil {
		t.Fatalf("NarrateModule: %v", err)
	}
	if sessionID != "sess-1" {
		t.Fatalf("expected session sess-1, got %s", sessionID)
	}

	audio, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio payload: %q", audio)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNarrateModuleMarksFailureOnSpeechError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO media_sessions")).
		WithArgs("content-1", "", "", "alloy", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-2"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE media_sessions SET")).
		WithArgs("sess-2", "", "", "alloy", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	provider := &speechProvider{script: "script", speakErr: errors.New("tts unavailable")}
	synth := NewSynthesizer(provider, st, config.MediaConfig{Enabled: true, Dir: t.TempDir(), Voice: "alloy"}, "content-model", "speech-model")

	sessionID, err := synth.NarrateModule(context.Background(), core.ModuleContent{
		ID:       "content-1",
		Title:    "SQL Basics",
		Sections: []core.ContentSection{{Heading: "Joins", Body: "b"}},
	})
	if err == nil {
		t.Fatal("expected error from speech synthesis")
	}
	if sessionID != "sess-2" {
		t.Fatalf("expected failed session id returned, got %q", sessionID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
