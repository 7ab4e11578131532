package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/highlight"
)

func readMessage(t *testing.T, conn *websocket.Conn) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func dialStream(t *testing.T, h *harness, id string, header http.Header) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(h.srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/views/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamPushesChartOnHighlightAndRefresh(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	conn := dialStream(t, h, id, nil)

	first := readMessage(t, conn)
	require.Equal(t, "chart", first.Type)
	require.NotNil(t, first.Chart)
	assert.True(t, first.Chart.Highlight.Idle())
	assert.NotEmpty(t, first.Chart.Buckets)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "enter", "kind": "point", "timestamp": 1234}))
	msg := readMessage(t, conn)
	require.Equal(t, "chart", msg.Type)
	require.NotNil(t, msg.Chart.Highlight.Point)
	assert.Equal(t, highlight.Point{Timestamp: 1234}, *msg.Chart.Highlight.Point)

	h.set.Invalidate(dataset.Anomalies)
	msg = readMessage(t, conn)
	assert.Equal(t, "chart", msg.Type)
	assert.Equal(t, dataset.Anomalies, msg.Dataset)
}

func TestStreamReportsBadCommands(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	conn := dialStream(t, h, id, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "jump"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "action must be enter or leave")
}

func TestStreamUnknownView(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/views/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.BearerToken = "s3cret" })
	rr := h.do(http.MethodPost, "/v1/views", nil, "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decodeInto[viewResponse](t, rr).ID

	ts := httptest.NewServer(h.srv)
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/views/" + id + "/stream"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?access_token=s3cret", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "chart", readMessage(t, conn).Type)
}

func TestStreamLeavesHighlightOnDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	conn := dialStream(t, h, id, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "enter", "kind": "range", "start": 1000, "end": 2000}))
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Chart.Highlight.Range)

	view, ok := h.views.Get(id)
	require.True(t, ok)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return view.Highlight.State().Idle() }, 2*time.Second, 5*time.Millisecond)
}

func TestStreamDisconnectKeepsOtherWritersHighlight(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	conn := dialStream(t, h, id, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "enter", "kind": "point", "timestamp": 1234}))
	readMessage(t, conn)

	rr := h.do(http.MethodPut, "/v1/views/"+id+"/highlight", map[string]any{"kind": "point", "timestamp": 5678})
	require.Equal(t, http.StatusOK, rr.Code)
	readMessage(t, conn)

	view, ok := h.views.Get(id)
	require.True(t, ok)
	require.NoError(t, conn.Close())

	// Give the server time to notice the close before checking nothing changed.
	require.Never(t, func() bool {
		p := view.Highlight.State().Point
		return p == nil || p.Timestamp != 5678
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestStreamPingsOnInjectedClock(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	conn := dialStream(t, h, id, nil)
	readMessage(t, conn)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		h.clk.Add(streamPingPeriod)
		select {
		case <-pinged:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
