package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

var (
	soxOnce      sync.Once
	soxAvailable bool
)

// CheckSox reports whether sox is in PATH. The lookup runs once.
func CheckSox() bool {
	soxOnce.Do(func() {
		_, err := exec.LookPath("sox")
		soxAvailable = err == nil
	})
	return soxAvailable
}

// Preprocess applies audio cleanup with sox before upload:
//   - Resample to 16kHz mono (what Whisper runs at internally)
//   - Normalize volume
//
// Returns the converted WAV bytes and ".wav", or the input unchanged when
// sox is unavailable.
func Preprocess(ctx context.Context, audio []byte, suffix string) ([]byte, string, error) {
	if !CheckSox() {
		return audio, suffix, nil
	}

	in, err := os.CreateTemp("", "vcon-wtf-in-*"+suffix)
	if err != nil {
		return audio, suffix, fmt.Errorf("create temp input: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(audio); err != nil {
		in.Close()
		return audio, suffix, fmt.Errorf("write temp input: %w", err)
	}
	in.Close()

	out, err := os.CreateTemp("", "vcon-wtf-out-*.wav")
	if err != nil {
		return audio, suffix, fmt.Errorf("create temp output: %w", err)
	}
	out.Close()
	defer os.Remove(out.Name())

	cmd := exec.CommandContext(ctx, "sox",
		in.Name(), out.Name(),
		"rate", "16000",
		"channels", "1",
		"norm",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return audio, suffix, fmt.Errorf("sox preprocess: %w: %s", err, output)
	}

	converted, err := os.ReadFile(out.Name())
	if err != nil {
		return audio, suffix, fmt.Errorf("read sox output: %w", err)
	}
	return converted, ".wav", nil
}
