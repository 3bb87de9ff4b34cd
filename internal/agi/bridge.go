package agi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/juanpgarcia/cobrabot/internal/audio"
	"github.com/juanpgarcia/cobrabot/internal/conversation"
	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// minRecordingBytes is the smallest recording treated as speech; anything
// shorter is silence or a hangup click.
const minRecordingBytes = 1000

// Channel is the slice of the AGI session the bridge drives, split out so
// tests can script a fake leg.
type Channel interface {
	Env(key string) string
	Answer() error
	Hangup() error
	StreamFile(name, escapeDigits string) error
	RecordFile(name, format, escapeDigits string, timeoutMs, silenceSecs int) (int, error)
	SetVariable(name, value string) error
	GetVariable(name string) (string, error)
	Verbose(message string) error
}

// Synthesizer is the TTS collaborator contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber is the STT collaborator contract.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Bridge binds one answered call leg to one conversation engine run.
type Bridge struct {
	Channel   Channel
	TTS       Synthesizer
	STT       Transcriber
	Converter audio.Converter

	// AudioDir is where playable WAVs go (the PBX sounds directory);
	// TempDir holds intermediate MP3s and recordings.
	AudioDir string
	TempDir  string

	MaxDuration   time.Duration
	RecordTimeout time.Duration
	SilenceSecs   int

	tempFiles []string
}

// Run drives the call to completion: build the client from channel variables,
// answer, loop speak/listen until the script ends or the ceiling is hit, then
// export the result and hang up. The returned result is also written into
// VOICEBOT_* channel variables for the dialplan.
func (b *Bridge) Run(ctx context.Context) (types.CallResult, error) {
	defer b.cleanup()
	defer func() { _ = b.Channel.Hangup() }()

	cliente, err := types.ClientFromVariables(b.getVariable)
	if err != nil {
		_ = b.Channel.Verbose("voicebot: bad channel variables: " + err.Error())
		return types.CallResult{}, fmt.Errorf("agi: load client: %w", err)
	}
	if cliente.Celular == "" {
		cliente.Celular = b.Channel.Env("callerid")
	}

	callID := "call_" + uuid.NewString()
	engine := conversation.New(callID, cliente)
	log.Info(ctx, log.KV{K: "msg", V: "call started"}, log.KV{K: "call_id", V: callID}, log.KV{K: "cedula", V: cliente.Cedula})

	if err := b.Channel.Answer(); err != nil {
		return engine.Result(), fmt.Errorf("agi: answer: %w", err)
	}

	b.converse(ctx, engine)

	result := engine.Result()
	b.exportResult(result)
	log.Info(ctx, log.KV{K: "msg", V: "call finished"},
		log.KV{K: "call_id", V: callID},
		log.KV{K: "resultado", V: string(result.Resultado)},
		log.KV{K: "monto", V: result.MontoAcordado},
		log.KV{K: "turnos", V: result.Turnos})
	return result, nil
}

func (b *Bridge) converse(ctx context.Context, engine *conversation.Engine) {
	maxDuration := b.MaxDuration
	if maxDuration == 0 {
		maxDuration = 5 * time.Minute
	}
	deadline := time.Now().Add(maxDuration)

	input := ""
	for {
		if time.Now().After(deadline) {
			log.Printf(ctx, "call ceiling reached, hanging up")
			return
		}

		mensaje, estado := engine.NextMessage(input)
		input = ""

		if mensaje != "" {
			if err := b.speak(ctx, mensaje); err != nil {
				// A collaborator failure ends the call, not the process.
				log.Error(ctx, err, log.KV{K: "msg", V: "tts turn failed"})
				return
			}
		}
		if estado == conversation.EstadoFin {
			return
		}
		if !estado.IsWaiting() {
			continue
		}

		transcript, err := b.listen(ctx)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "stt turn failed"})
			return
		}
		if transcript == "" {
			log.Printf(ctx, "no response from client, ending call")
			return
		}
		input = transcript
	}
}

// speak synthesizes the utterance, converts it to PBX format and plays it.
func (b *Bridge) speak(ctx context.Context, texto string) error {
	mp3, err := b.TTS.Synthesize(ctx, texto)
	if err != nil {
		return fmt.Errorf("agi: synthesize: %w", err)
	}

	stamp := fmt.Sprintf("tts_%d", time.Now().UnixMilli())
	mp3Path := filepath.Join(b.TempDir, stamp+".mp3")
	if err := os.WriteFile(mp3Path, mp3, 0o644); err != nil {
		return fmt.Errorf("agi: write audio: %w", err)
	}
	b.tempFiles = append(b.tempFiles, mp3Path)

	wavPath := filepath.Join(b.AudioDir, stamp+".wav")
	if err := b.Converter.ToWAV(ctx, mp3Path, wavPath); err != nil {
		return err
	}
	b.tempFiles = append(b.tempFiles, wavPath)

	// STREAM FILE takes the path without extension.
	return b.Channel.StreamFile(wavPath[:len(wavPath)-len(".wav")], "")
}

// listen records the client and transcribes the recording. An empty string
// with nil error means silence (no usable speech).
func (b *Bridge) listen(ctx context.Context) (string, error) {
	recordTimeout := b.RecordTimeout
	if recordTimeout == 0 {
		recordTimeout = 7 * time.Second
	}
	silence := b.SilenceSecs
	if silence == 0 {
		silence = 2
	}

	base := filepath.Join(b.TempDir, fmt.Sprintf("rec_%d", time.Now().UnixMilli()))
	if _, err := b.Channel.RecordFile(base, "wav", "#", int(recordTimeout.Milliseconds()), silence); err != nil {
		return "", fmt.Errorf("agi: record: %w", err)
	}
	wavPath := base + ".wav"
	b.tempFiles = append(b.tempFiles, wavPath)

	info, err := os.Stat(wavPath)
	if err != nil || info.Size() < minRecordingBytes {
		return "", nil
	}

	transcript, err := b.STT.TranscribeFile(ctx, wavPath)
	if err != nil {
		return "", err
	}
	log.Debug(ctx, log.KV{K: "msg", V: "client said"}, log.KV{K: "transcript", V: transcript})
	return transcript, nil
}

func (b *Bridge) exportResult(result types.CallResult) {
	_ = b.Channel.SetVariable(types.VarResultado, string(result.Resultado))
	_ = b.Channel.SetVariable(types.VarMonto, fmt.Sprintf("%.0f", result.MontoAcordado))
	_ = b.Channel.SetVariable(types.VarDuracion, fmt.Sprintf("%d", result.DuracionSegundos))
	_ = b.Channel.SetVariable(types.VarTurnos, fmt.Sprintf("%d", result.Turnos))
}

func (b *Bridge) getVariable(name string) string {
	v, err := b.Channel.GetVariable(name)
	if err != nil {
		return ""
	}
	return v
}

func (b *Bridge) cleanup() {
	for _, f := range b.tempFiles {
		_ = os.Remove(f)
	}
	b.tempFiles = nil
}
