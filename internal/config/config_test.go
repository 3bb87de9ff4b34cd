package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost", cfg.Asterisk.Host)
	assert.Equal(t, 5038, cfg.Asterisk.AMIPort)
	assert.Equal(t, "PJSIP/trunk-salida", cfg.Asterisk.Trunk)
	assert.Equal(t, 5, cfg.Dialer.MaxConcurrent)
	assert.Equal(t, 8, cfg.Dialer.HoraInicio)
	assert.Equal(t, 20, cfg.Dialer.HoraFin)
	assert.Equal(t, 5*time.Minute, cfg.Dialer.MaxCallDuration)
	assert.Equal(t, "es", cfg.Speech.Language)
	require.NoError(t, cfg.validate())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cobrabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
asterisk:
  host: pbx.interno
  secret: otro-secreto
dialer:
  max_concurrent: 10
  call_timeout: 45s
  hora_fin: 18
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pbx.interno", cfg.Asterisk.Host)
	assert.Equal(t, "otro-secreto", cfg.Asterisk.Secret)
	assert.Equal(t, 10, cfg.Dialer.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Dialer.CallTimeout)
	assert.Equal(t, 18, cfg.Dialer.HoraFin)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5038, cfg.Asterisk.AMIPort)
	assert.Equal(t, 3, cfg.Dialer.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cobrabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("asterisk:\n  host: pbx.interno\n"), 0o644))

	t.Setenv("ASTERISK_HOST", "10.0.0.5")
	t.Setenv("ASTERISK_AMI_PORT", "5039")
	t.Setenv("ELEVENLABS_API_KEY", "clave-tts")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Asterisk.Host)
	assert.Equal(t, 5039, cfg.Asterisk.AMIPort)
	assert.Equal(t, "clave-tts", cfg.Speech.ElevenLabsAPIKey)
	assert.Equal(t, "xoxb-token", cfg.Notify.SlackToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Dialer, cfg.Dialer)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Dialer.HoraInicio = 20
	cfg.Dialer.HoraFin = 8
	require.Error(t, cfg.validate())

	cfg = Default()
	cfg.Asterisk.AMIPort = 0
	require.Error(t, cfg.validate())

	cfg = Default()
	cfg.Dialer.MaxConcurrent = 0
	require.Error(t, cfg.validate())
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rota.yaml")
	require.NoError(t, os.WriteFile(path, []byte("asterisk: ["), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
