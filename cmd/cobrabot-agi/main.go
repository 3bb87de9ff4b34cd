// Command cobrabot-agi is launched by the dialplan for each answered leg. It
// speaks AGI over stdin/stdout, so every log line goes to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"goa.design/clue/log"

	"github.com/juanpgarcia/cobrabot/internal/agi"
	"github.com/juanpgarcia/cobrabot/internal/audio"
	"github.com/juanpgarcia/cobrabot/internal/config"
	"github.com/juanpgarcia/cobrabot/internal/stt"
	"github.com/juanpgarcia/cobrabot/internal/tts"
)

func main() {
	exitFn(run(os.Stdin, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	ctx := log.Context(context.Background(), log.WithOutput(stderr))

	cfg, err := config.Load(os.Getenv("COBRABOT_CONFIG"))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	session, err := agi.NewSession(stdin, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	transcriber, err := stt.NewFromAPIKey(cfg.Speech.OpenAIAPIKey, cfg.Speech.Language)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	synth := &tts.Client{
		APIKey:   cfg.Speech.ElevenLabsAPIKey,
		VoiceID:  cfg.Speech.VoiceID,
		Model:    cfg.Speech.TTSModel,
		CacheDir: cfg.Paths.CacheDir,
	}

	tempDir, err := os.MkdirTemp("", "cobrabot")
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer os.RemoveAll(tempDir)

	bridge := &agi.Bridge{
		Channel:     session,
		TTS:         synth,
		STT:         transcriber,
		Converter:   audio.FFmpeg{},
		AudioDir:    cfg.Paths.AudioDir,
		TempDir:     tempDir,
		MaxDuration: cfg.Dialer.MaxCallDuration,
	}

	if _, err := bridge.Run(ctx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "bridge run failed"})
		return 1
	}
	return 0
}
