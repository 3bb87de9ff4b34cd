// Package agi speaks the Asterisk Gateway Interface protocol: the PBX starts
// one process per answered leg, hands it a blank-line-terminated key: value
// metadata block on stdin, then exchanges one command line for one reply line
// until the process exits.
package agi

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reply is one parsed "200 result=<value> [(extra)]" line.
type Reply struct {
	Code   int
	Result int
	Extra  string
	Raw    string
}

// Session is one AGI conversation over the process's standard streams.
type Session struct {
	r   *bufio.Reader
	w   io.Writer
	env map[string]string
}

// NewSession reads the channel metadata block from r and returns a ready
// session. The block is a series of "agi_key: value" lines ended by a blank
// line.
func NewSession(r io.Reader, w io.Writer) (*Session, error) {
	br := bufio.NewReader(r)
	env := make(map[string]string)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("agi: read env: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		env[strings.TrimPrefix(k, "agi_")] = v
	}
	return &Session{r: br, w: w, env: env}, nil
}

// Env returns a channel metadata value read at startup, e.g. "callerid".
func (s *Session) Env(key string) string { return s.env[key] }

// Execute sends one command line and parses the reply.
func (s *Session) Execute(command string) (Reply, error) {
	if _, err := fmt.Fprintf(s.w, "%s\n", command); err != nil {
		return Reply{}, fmt.Errorf("agi: write command: %w", err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return Reply{}, fmt.Errorf("agi: read reply: %w", err)
	}
	return parseReply(strings.TrimRight(line, "\r\n"))
}

func parseReply(line string) (Reply, error) {
	rep := Reply{Raw: line}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return rep, fmt.Errorf("agi: empty reply")
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return rep, fmt.Errorf("agi: bad reply %q", line)
	}
	rep.Code = code
	for _, f := range fields[1:] {
		if v, ok := strings.CutPrefix(f, "result="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				rep.Result = n
			}
			break
		}
	}
	if open := strings.Index(line, "("); open >= 0 {
		if close := strings.LastIndex(line, ")"); close > open {
			rep.Extra = line[open+1 : close]
		}
	}
	if code != 200 {
		return rep, fmt.Errorf("agi: command failed: %q", line)
	}
	return rep, nil
}

// Answer picks up the leg.
func (s *Session) Answer() error {
	_, err := s.Execute("ANSWER")
	return err
}

// Hangup ends the leg.
func (s *Session) Hangup() error {
	_, err := s.Execute("HANGUP")
	return err
}

// StreamFile plays the audio file (path without extension). escapeDigits
// lists DTMF keys that interrupt playback.
func (s *Session) StreamFile(name, escapeDigits string) error {
	_, err := s.Execute(fmt.Sprintf("STREAM FILE %q %q", name, escapeDigits))
	return err
}

// RecordFile records the caller into name.<format> until a silence of
// silenceSecs, a timeout, or an escape digit. It returns the endpos reported
// by the PBX when available.
func (s *Session) RecordFile(name, format, escapeDigits string, timeoutMs, silenceSecs int) (int, error) {
	cmd := fmt.Sprintf("RECORD FILE %q %q %q %d BEEP s=%d", name, format, escapeDigits, timeoutMs, silenceSecs)
	rep, err := s.Execute(cmd)
	if err != nil {
		return 0, err
	}
	if rep.Result < 0 {
		return 0, fmt.Errorf("agi: record failed: %q", rep.Raw)
	}
	return endpos(rep.Raw), nil
}

// SetVariable writes a channel variable.
func (s *Session) SetVariable(name, value string) error {
	_, err := s.Execute(fmt.Sprintf("SET VARIABLE %s %q", name, value))
	return err
}

// GetVariable reads a channel variable; result=1 carries the value in
// parentheses, result=0 means unset.
func (s *Session) GetVariable(name string) (string, error) {
	rep, err := s.Execute(fmt.Sprintf("GET VARIABLE %s", name))
	if err != nil {
		return "", err
	}
	if rep.Result != 1 {
		return "", nil
	}
	return rep.Extra, nil
}

// Verbose writes a message to the PBX console log.
func (s *Session) Verbose(message string) error {
	_, err := s.Execute(fmt.Sprintf("VERBOSE %q 1", message))
	return err
}

// SayDigits reads digits out one by one.
func (s *Session) SayDigits(digits string) error {
	_, err := s.Execute(fmt.Sprintf("SAY DIGITS %s %q", digits, ""))
	return err
}

// WaitForDigit waits up to the timeout for a DTMF key; 0 means none pressed.
func (s *Session) WaitForDigit(timeoutMs int) (byte, error) {
	rep, err := s.Execute(fmt.Sprintf("WAIT FOR DIGIT %d", timeoutMs))
	if err != nil {
		return 0, err
	}
	if rep.Result > 0 {
		return byte(rep.Result), nil
	}
	return 0, nil
}

func endpos(raw string) int {
	idx := strings.Index(raw, "endpos=")
	if idx < 0 {
		return 0
	}
	rest := raw[idx+len("endpos="):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(rest)
	}
	n, _ := strconv.Atoi(rest[:end])
	return n
}
