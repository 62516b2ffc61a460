package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
)

func collect(t *testing.T, ch <-chan models.Transcript) []models.Transcript {
	t.Helper()
	var out []models.Transcript
	timeout := time.After(2 * time.Second)
	for {
		select {
		case tr, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-timeout:
			t.Fatal("results channel was not closed")
		}
	}
}

func TestRelay_FinalTranscriptEndsUtterance(t *testing.T) {
	t.Parallel()

	r := NewRelay()
	assert.True(t, r.Available())
	assert.ErrorIs(t, r.Push(models.Transcript{Text: "help"}), apperr.ErrNotActive)

	s, err := r.StartListening(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Listening())

	_, err = r.StartListening(context.Background())
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, r.Push(models.Transcript{Text: "please"}))
	require.NoError(t, r.Push(models.Transcript{Text: " please help me ", Final: true}))
	assert.False(t, r.Listening())

	got := collect(t, s.Results())
	require.Len(t, got, 2)
	assert.Equal(t, "please help me", got[1].Text)
	assert.True(t, got[1].Final)
	assert.NoError(t, s.Err())

	assert.ErrorIs(t, r.Push(models.Transcript{Text: "late", Final: true}), apperr.ErrNotActive)
	assert.Error(t, r.Push(models.Transcript{Text: "  "}))
}

func TestRelay_StopAndContextEndSession(t *testing.T) {
	t.Parallel()

	r := NewRelay()
	s, err := r.StartListening(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	assert.Empty(t, collect(t, s.Results()))
	assert.False(t, r.Listening())

	ctx, cancel := context.WithCancel(context.Background())
	s, err = r.StartListening(ctx)
	require.NoError(t, err)
	cancel()
	collect(t, s.Results())
	assert.False(t, r.Listening())
}

var upgrader = websocket.Upgrader{}

func recognizer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocket_StreamsUntilSpeechFinal(t *testing.T) {
	t.Parallel()

	srv := recognizer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","text":"call"}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","text":"call for help","is_final":true,"speech_final":true}`))
		_, _, _ = c.ReadMessage()
	})

	w := NewWebsocket(WebsocketConfig{URL: wsURL(srv), APIKey: "key"})
	require.True(t, w.Available())

	s, err := w.StartListening(context.Background())
	require.NoError(t, err)
	got := collect(t, s.Results())
	require.Len(t, got, 2)
	assert.False(t, got[0].Final)
	assert.Equal(t, models.Transcript{Text: "call for help", Final: true}, got[1])
	assert.NoError(t, s.Err())
	assert.NoError(t, s.Stop())
}

func TestWebsocket_ErrorEventIsRecognizerError(t *testing.T) {
	t.Parallel()

	srv := recognizer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","message":"quota exceeded"}`))
		_, _, _ = c.ReadMessage()
	})

	s, err := NewWebsocket(WebsocketConfig{URL: wsURL(srv), APIKey: "key"}).StartListening(context.Background())
	require.NoError(t, err)
	collect(t, s.Results())
	require.ErrorIs(t, s.Err(), apperr.ErrRecognizerError)
	assert.Contains(t, s.Err().Error(), "quota exceeded")
}

func TestWebsocket_StopEndsCleanly(t *testing.T) {
	t.Parallel()

	srv := recognizer(t, func(c *websocket.Conn) {
		_, _, _ = c.ReadMessage()
	})

	s, err := NewWebsocket(WebsocketConfig{URL: wsURL(srv), APIKey: "key"}).StartListening(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	collect(t, s.Results())
	assert.NoError(t, s.Err())
}

func TestWebsocket_DialFailures(t *testing.T) {
	t.Parallel()

	w := NewWebsocket(WebsocketConfig{})
	assert.False(t, w.Available())
	_, err := w.StartListening(context.Background())
	assert.ErrorIs(t, err, apperr.ErrRecognizerError)

	srv := recognizer(t, func(*websocket.Conn) {})
	_, err = NewWebsocket(WebsocketConfig{URL: wsURL(srv), APIKey: "wrong"}).StartListening(context.Background())
	assert.ErrorIs(t, err, apperr.ErrRecognizerError)
}
