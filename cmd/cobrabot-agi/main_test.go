package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunTruncatedHandoff(t *testing.T) {
	t.Setenv("COBRABOT_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "clave")

	// The PBX hands over the env block before anything else; a closed stdin
	// means the leg is already gone.
	var stdout, stderr strings.Builder
	code := run(strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "agi")
}

func TestRunMissingSTTKey(t *testing.T) {
	t.Setenv("COBRABOT_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "")

	env := "agi_request: cobrabot-agi\nagi_channel: PJSIP/x-1\n\n"
	var stdout, stderr strings.Builder
	code := run(strings.NewReader(env), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "api key")
}

func TestRunBadConfig(t *testing.T) {
	t.Setenv("COBRABOT_CONFIG", "/no/such/config.yaml")

	var stdout, stderr strings.Builder
	code := run(strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "config")
}
