package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionEncodeParseRoundTrip(t *testing.T) {
	a := NewAction("Originate").
		Set("Channel", "PJSIP/trunk-salida/573001234567").
		Set("Context", "voicebot-cobranzas").
		Set("Exten", "s").
		Set("Variable", "CLIENTE_CEDULA=1234567890")

	raw := a.Encode("42")
	require.True(t, strings.HasPrefix(string(raw), "Action: Originate\r\n"),
		"Action header must come first")
	require.True(t, strings.HasSuffix(string(raw), "\r\n\r\n"),
		"frame must end with a blank line")

	msg := ParseMessage(string(raw))
	assert.Equal(t, "Originate", msg["Action"])
	assert.Equal(t, "42", msg.ActionID())
	assert.Equal(t, "voicebot-cobranzas", msg["Context"])
	assert.Equal(t, "CLIENTE_CEDULA=1234567890", msg["Variable"])
}

func TestParseMessageTolerance(t *testing.T) {
	// Bare LF terminators, free-form lines and padded values all occur on
	// real AMI connections.
	msg := ParseMessage("Response: Success\nsome free-form output\nMessage:   Authentication accepted  \n")
	assert.True(t, msg.Success())
	assert.Equal(t, "Authentication accepted", msg["Message"])
	assert.False(t, msg.IsEvent())

	evt := ParseMessage("Event: Hangup\r\nUniqueid: 167.12\r\n")
	assert.True(t, evt.IsEvent())
	assert.Equal(t, "167.12", evt["Uniqueid"])
}

func TestMessageValueWithColon(t *testing.T) {
	msg := ParseMessage("Event: VarSet\r\nChannel: PJSIP/trunk-salida-00000001\r\nValue: llamada: cerrada\r\n")
	assert.Equal(t, "llamada: cerrada", msg["Value"])
}

// fakeServer speaks just enough AMI to exercise the client: banner, Login,
// then hands each subsequent frame to the handler.
func fakeServer(t *testing.T, handler func(w *bufio.Writer, req Message)) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		w := bufio.NewWriter(conn)
		fmt.Fprint(w, "Asterisk Call Manager/7.0.3\r\n")
		w.Flush()

		r := bufio.NewReader(conn)
		for {
			req, err := readFrame(r)
			if err != nil {
				return
			}
			if req["Action"] == "Login" {
				fmt.Fprintf(w, "Response: Success\r\nActionID: %s\r\nMessage: Authentication accepted\r\n\r\n", req.ActionID())
				w.Flush()
				continue
			}
			if req["Action"] == "Logoff" {
				return
			}
			handler(w, req)
			w.Flush()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return &Client{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		Username:    "voicebot",
		Secret:      "voicebot123",
		ReadTimeout: 5 * time.Second,
	}
}

func readFrame(r *bufio.Reader) (Message, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return ParseMessage(b.String()), nil
		}
		b.WriteString(line)
	}
}

func TestOriginateInterleavedWithEvents(t *testing.T) {
	c := fakeServer(t, func(w *bufio.Writer, req Message) {
		assert.Equal(t, "Originate", req["Action"])
		assert.Equal(t, "true", req["Async"])
		// An unsolicited event lands before the correlated response.
		fmt.Fprint(w, "Event: Newchannel\r\nChannel: PJSIP/trunk-salida-00000001\r\n\r\n")
		fmt.Fprintf(w, "Response: Success\r\nActionID: %s\r\nMessage: Originate successfully queued\r\n\r\n", req.ActionID())
	})

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	res, err := c.Originate(ctx, "PJSIP/trunk-salida/573001234567", "voicebot-cobranzas", "s", 1,
		"Cobranzas <573001234567>", 30*time.Second,
		map[string]string{"CLIENTE_CEDULA": "1234567890"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ActionID)

	select {
	case evt := <-c.Events():
		assert.Equal(t, "Newchannel", evt["Event"])
	case <-time.After(2 * time.Second):
		t.Fatal("interleaved event never delivered")
	}
}

func TestLoginRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprint(conn, "Asterisk Call Manager/7.0.3\r\n")
		r := bufio.NewReader(conn)
		req, err := readFrame(r)
		if err != nil {
			return
		}
		fmt.Fprintf(conn, "Response: Error\r\nActionID: %s\r\nMessage: Authentication failed\r\n\r\n", req.ActionID())
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c := &Client{Host: "127.0.0.1", Port: addr.Port, Username: "x", Secret: "bad", ReadTimeout: 5 * time.Second}
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestListChannels(t *testing.T) {
	c := fakeServer(t, func(w *bufio.Writer, req Message) {
		assert.Equal(t, "CoreShowChannels", req["Action"])
		id := req.ActionID()
		fmt.Fprintf(w, "Response: Success\r\nActionID: %s\r\nMessage: Channels will follow\r\n\r\n", id)
		fmt.Fprintf(w, "Event: CoreShowChannel\r\nActionID: %s\r\nChannel: PJSIP/trunk-salida-00000001\r\n\r\n", id)
		fmt.Fprintf(w, "Event: CoreShowChannel\r\nActionID: %s\r\nChannel: PJSIP/trunk-salida-00000002\r\n\r\n", id)
		fmt.Fprintf(w, "Event: CoreShowChannelsComplete\r\nActionID: %s\r\nListItems: 2\r\n\r\n", id)
	})

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	channels, err := c.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PJSIP/trunk-salida-00000001", "PJSIP/trunk-salida-00000002"}, channels)
}

func TestSendBeforeConnect(t *testing.T) {
	c := &Client{Host: "127.0.0.1", Port: 5038}
	_, err := c.Send(context.Background(), NewAction("Ping"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendAfterClose(t *testing.T) {
	c := fakeServer(t, func(w *bufio.Writer, req Message) {})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	_, err := c.Send(context.Background(), NewAction("Ping"))
	require.Error(t, err)
}

func TestActionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	c := fakeServer(t, func(w *bufio.Writer, req Message) {
		fmt.Fprintf(w, "Response: Success\r\nActionID: %s\r\n\r\n", req.ActionID())
	})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	for i := 0; i < 10; i++ {
		resp, err := c.Send(ctx, NewAction("Ping"))
		require.NoError(t, err)
		id := resp.ActionID()
		require.False(t, seen[id], "ActionID %s reused", id)
		seen[id] = true
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			t.Fatalf("non-numeric ActionID %q", id)
		}
	}
}
