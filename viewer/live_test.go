package viewer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/store"
)

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewLiveHub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("g1", store.ScenarioSnapshot{Size: 6})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing with no subscribers must not block")
	}
}

func TestLiveStreamDeliversFrames(t *testing.T) {
	hub := NewLiveHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscriber registers asynchronously; publish until a frame lands.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make(chan LiveFrame, 1)
	go func() {
		var frame LiveFrame
		if err := conn.ReadJSON(&frame); err == nil {
			got <- frame
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		hub.Publish("g1", store.ScenarioSnapshot{Size: 6, TurnCount: 2})
		select {
		case frame := <-got:
			require.Equal(t, "g1", frame.GameID)
			require.Equal(t, 6, frame.State.Size)
			require.Equal(t, 2, frame.State.TurnCount)
			return
		case <-deadline:
			t.Fatal("no frame arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTurnsEndpointRequiresID(t *testing.T) {
	srv := NewServer(t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodGet, "/games/turns", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
