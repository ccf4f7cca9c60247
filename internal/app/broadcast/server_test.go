package broadcast

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, src *fakeSource) (*Server, *httptest.Server) {
	t.Helper()
	b := New(src, &nopObs{}, Config{PollInterval: 5 * time.Millisecond})
	srv := NewServer(b, &nopObs{}, "/ws")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestServerRootInfo(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{})
	client := ts.Client()
	defer client.CloseIdleConnections()

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"message":"WebSocket ready at /ws"}`, string(body))

	resp2, err := client.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServerStreamsSnapshotThenDelta(t *testing.T) {
	src := &fakeSource{}
	src.set(rows(12))
	_, ts := newTestServer(t, src)

	conn := dial(t, ts)
	defer conn.Close()

	first := readFrame(t, conn)
	require.Len(t, first, 10)
	require.Equal(t, float64(12), first[0]["ID"])
	require.Equal(t, "Machine1", first[0]["MachineID"]) // id 12 -> Machines[0]
	require.Equal(t, "2025-03-28T05:46:12", first[0]["Timestamp"])
	for _, key := range []string{"ID", "MachineID", "Timestamp", "Temperature", "Pressure"} {
		require.Contains(t, first[0], key)
	}

	changed := rows(12)
	changed[1].Temperature = 77.25
	src.set(changed)

	delta := readFrame(t, conn)
	require.Len(t, delta, 1)
	require.Equal(t, 77.25, delta[0]["Temperature"])
}

func TestServerEmptyStoreFirstFrame(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{})
	conn := dial(t, ts)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))
}

func TestServerClientDisconnectEndsStream(t *testing.T) {
	src := &fakeSource{}
	src.set(rows(2))
	srv, ts := newTestServer(t, src)

	a := dial(t, ts)
	b := dial(t, ts)
	defer b.Close()
	readFrame(t, a)
	readFrame(t, b)
	require.Eventually(t, func() bool { return srv.b.Clients() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return srv.b.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	// the remaining client keeps streaming
	changed := rows(2)
	changed[0].Pressure = 5
	src.set(changed)
	frame := readFrame(t, b)
	require.Len(t, frame, 1)
}

func TestServerRejectsStreamsAfterClose(t *testing.T) {
	srv, ts := newTestServer(t, &fakeSource{})
	srv.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
