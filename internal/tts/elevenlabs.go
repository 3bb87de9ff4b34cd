// Package tts synthesizes bot utterances through the ElevenLabs API.
// Generated audio is cached on disk keyed by a hash of (text, voice), so
// repeated script lines cost one API call per campaign.
package tts

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

// Client calls the ElevenLabs text-to-speech API.
type Client struct {
	APIKey   string
	VoiceID  string
	Model    string
	BaseURL  string
	CacheDir string
	HTTP     *http.Client
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Voice is one entry of the provider's voice catalog.
type Voice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// Subscription is the account quota summary.
type Subscription struct {
	CharacterCount int `json:"character_count"`
	CharacterLimit int `json:"character_limit"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return c.HTTP
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return defaultBaseURL
	}
	return c.BaseURL
}

// Synthesize converts text to MP3 audio, serving from the disk cache when the
// same text/voice pair was generated before.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("tts: missing api key")
	}
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}

	cachePath := c.cachePath(text)
	if cachePath != "" {
		if audio, err := os.ReadFile(cachePath); err == nil {
			return audio, nil
		}
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: c.Model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.8,
			SpeakerBoost:    true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL(), c.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: synthesize: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("tts: synthesize: status %d: %s", res.StatusCode, bytes.TrimSpace(detail))
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}

	if cachePath != "" {
		// Best effort: a failed cache write must not fail the call.
		_ = os.MkdirAll(filepath.Dir(cachePath), 0o755)
		_ = os.WriteFile(cachePath, audio, 0o644)
	}
	return audio, nil
}

// ListVoices returns the account's voice catalog.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.getJSON(ctx, "/voices", &payload); err != nil {
		return nil, err
	}
	return payload.Voices, nil
}

// GetSubscription returns character usage and limit for the account.
func (c *Client) GetSubscription(ctx context.Context) (Subscription, error) {
	var sub Subscription
	if err := c.getJSON(ctx, "/user/subscription", &sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.APIKey)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("tts: %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("tts: %s: status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) cachePath(text string) string {
	if c.CacheDir == "" {
		return ""
	}
	sum := md5.Sum([]byte(text + "_" + c.VoiceID))
	return filepath.Join(c.CacheDir, hex.EncodeToString(sum[:])+".mp3")
}
