package runstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frago/internal/cdp"
	"frago/internal/config"
)

// tinyPNG is a 1x1 transparent PNG, just enough bytes to exercise the
// decode-then-atomic-write path.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

func newFakeScreenshotSession(t *testing.T) *cdp.Session {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "page-1", "type": "page", "webSocketDebuggerUrl": "ws://" + r.Host + "/ws"},
		})
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var req struct {
					ID     int64  `json:"id"`
					Method string `json:"method"`
				}
				_ = json.Unmarshal(data, &req)
				result := json.RawMessage(`{}`)
				if req.Method == "Page.captureScreenshot" {
					result, _ = json.Marshal(map[string]string{"data": tinyPNG})
				}
				out, _ := json.Marshal(map[string]any{"id": req.ID, "result": result})
				if conn.WriteMessage(websocket.TextMessage, out) != nil {
					return
				}
			}
		}()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	hostPort := strings.TrimPrefix(srv.URL, "http://")
	parts := strings.SplitN(hostPort, ":", 2)
	port, _ := strconv.Atoi(parts[1])

	session := cdp.NewSession(config.CDPConfig{
		Host: parts[0], Port: port,
		ConnectTimeoutSeconds: 2, CommandTimeoutSeconds: 2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, session.Connect(ctx))
	t.Cleanup(func() { session.Disconnect() })
	return session
}

func TestScreenshotPipeline_NextSequenceNumber_EmptyDir(t *testing.T) {
	p := NewScreenshotPipeline(t.TempDir())
	seq, err := p.NextSequenceNumber()
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestScreenshotPipeline_Capture(t *testing.T) {
	runDir := t.TempDir()
	p := NewScreenshotPipeline(runDir)
	session := newFakeScreenshotSession(t)

	shot, err := p.Capture(context.Background(), session, "Search Results Page!!")
	require.NoError(t, err)
	assert.Equal(t, 1, shot.SequenceNumber)
	assert.True(t, strings.HasPrefix(shot.FilePath, "screenshots/001_search-results-page"))

	second, err := p.Capture(context.Background(), session, "second shot")
	require.NoError(t, err)
	assert.Equal(t, 2, second.SequenceNumber)
}

func TestSlugifyDescription(t *testing.T) {
	cases := map[string]string{
		"Search Results Page!!":                                    "search-results-page",
		"":                                                          "screenshot",
		"!!!":                                                       "screenshot",
		"this description is extremely long and exceeds forty characters by a wide margin": "this-description-is-extremely-long-and-e",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugifyDescription(in), "slugifyDescription(%q)", in)
	}
}
