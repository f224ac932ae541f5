package live_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/railtail/station-tracker/internal/live"
)

func newTestHub() *live.Hub {
	return live.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// dialTestServer connects a websocket client to a hub mounted on httptest.
func dialTestServer(t *testing.T, hub *live.Hub) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return srv, conn
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := newTestHub()
	srv, conn := dialTestServer(t, hub)
	defer srv.Close()
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Broadcast("locationUpdate", live.LocationUpdate{
		StationID:      "85003",
		Latitude:       12.97,
		Longitude:      77.59,
		DistanceMeters: 42.5,
		Status:         "INSIDE",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev struct {
		Event string              `json:"event"`
		Data  live.LocationUpdate `json:"data"`
	}
	if err := json.Unmarshal(frame, &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Event != "locationUpdate" {
		t.Errorf("event = %q, want locationUpdate", ev.Event)
	}
	if ev.Data.StationID != "85003" || ev.Data.Status != "INSIDE" {
		t.Errorf("unexpected payload: %+v", ev.Data)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := newTestHub()
	srv, conn := dialTestServer(t, hub)
	defer srv.Close()

	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting with no subscribers must not panic or block.
	hub.Broadcast("statusUpdate", live.StatusUpdate{StationID: "85003", Status: "OFFLINE"})
}

func waitForClients(t *testing.T, hub *live.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (now %d)", want, hub.ClientCount())
}
