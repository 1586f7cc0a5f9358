package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/imalyk/go-meeting-insights/internal/config"
)

// Transcriber converts a recording to 16kHz mono WAV and runs whisper.cpp
// over it.
type Transcriber struct {
	cfg    config.Config
	logger *slog.Logger
}

func NewTranscriber(cfg config.Config, logger *slog.Logger) *Transcriber {
	return &Transcriber{cfg: cfg, logger: logger}
}

// Transcribe returns the transcript text and the language it was decoded
// as. The intermediate WAV and whisper output files are removed before
// returning.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, string, error) {
	wavPath, err := t.toWav16kMono(ctx, audioPath)
	if err != nil {
		return "", "", fmt.Errorf("convert to wav: %w", err)
	}
	defer func() {
		if wavPath != audioPath {
			os.Remove(wavPath)
		}
	}()

	outDir, err := os.MkdirTemp(t.cfg.TempDir, "whisper-")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(outDir)
	outPrefix := filepath.Join(outDir, "out")

	cmd := exec.CommandContext(ctx, t.cfg.WhisperBin,
		"-m", t.cfg.WhisperModel,
		"-f", wavPath,
		"-otxt",
		"-of", outPrefix,
		"-l", t.cfg.WhisperLanguage,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(string(output)))
	}

	txtPath := outPrefix + ".txt"
	if _, err := os.Stat(txtPath); err != nil {
		// Some whisper.cpp builds name the output after the input file.
		alt := outPrefix + ".wav.txt"
		if _, altErr := os.Stat(alt); altErr != nil {
			return "", "", fmt.Errorf("whisper output not found: %w", err)
		}
		txtPath = alt
	}

	transcript, err := os.ReadFile(txtPath)
	if err != nil {
		return "", "", fmt.Errorf("read transcript: %w", err)
	}

	text := strings.TrimSpace(string(transcript))
	t.logger.Info("transcription finished", "chars", len(text), "language", t.cfg.WhisperLanguage)
	return text, t.cfg.WhisperLanguage, nil
}

// toWav16kMono re-encodes the input for the speech model.
func (t *Transcriber) toWav16kMono(ctx context.Context, src string) (string, error) {
	ext := filepath.Ext(src)
	wav := strings.TrimSuffix(src, ext) + ".wav"
	if wav == src {
		wav = src + ".16k.wav"
	}

	cmd := exec.CommandContext(ctx, t.cfg.FFMPEGPath,
		"-y",
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		wav,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return wav, nil
}
