// Package audio converts TTS output into the 8kHz mono WAV format the PBX
// plays. Conversion shells out to ffmpeg, same as the production dialplan
// host.
package audio

import (
	"context"
	"fmt"
	"os/exec"
)

// Converter turns an MP3 file into a playable WAV file.
type Converter interface {
	ToWAV(ctx context.Context, mp3Path, wavPath string) error
}

// FFmpeg implements Converter with the ffmpeg binary.
type FFmpeg struct {
	// Binary overrides the ffmpeg executable path; empty means $PATH lookup.
	Binary string
}

// ToWAV transcodes mp3Path into an 8kHz mono WAV at wavPath.
func (f FFmpeg) ToWAV(ctx context.Context, mp3Path, wavPath string) error {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, "-y", "-i", mp3Path, "-ar", "8000", "-ac", "1", wavPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio: ffmpeg: %w: %s", err, firstLine(out))
	}
	return nil
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
