// Package stt transcribes recorded call audio with OpenAI Whisper via
// github.com/sashabaranov/go-openai.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// domainPrompt biases the transcription toward collections vocabulary; the
// phone audio is 8kHz mono and otherwise easy to misread.
const domainPrompt = "Conversación telefónica de cobranzas bancarias en español colombiano. " +
	"Términos comunes: sí, no, cuota, pago, banco, tarjeta, crédito, mora, " +
	"pesos, plata, mañana, hoy, acuerdo, abono."

// TranscriptionClient captures the subset of the go-openai client the
// transcriber uses.
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber converts recorded audio into text.
type Transcriber struct {
	client   TranscriptionClient
	model    string
	language string
}

// New builds a Transcriber on top of an existing client.
func New(client TranscriptionClient, language string) (*Transcriber, error) {
	if client == nil {
		return nil, errors.New("stt: client is required")
	}
	if language == "" {
		language = "es"
	}
	return &Transcriber{client: client, model: openai.Whisper1, language: language}, nil
}

// NewFromAPIKey constructs a Transcriber with the default go-openai HTTP
// client.
func NewFromAPIKey(apiKey, language string) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("stt: api key is required")
	}
	return New(openai.NewClient(apiKey), language)
}

// TranscribeFile sends the audio file at path to Whisper and returns the
// transcript, trimmed. An empty transcript means the recording carried no
// usable speech.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Language: t.language,
		Prompt:   domainPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("stt: transcribe %s: %w", path, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Transcribe sends in-memory audio bytes to Whisper. filename hints the
// container format to the API.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: t.language,
		Prompt:   domainPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
