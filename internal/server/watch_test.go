package server

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWatch(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) listReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply listReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestWatch_StreamsEveryChange(t *testing.T) {
	st := newRoomStore()
	srv := New(st, Options{ListTimeout: 5 * time.Second}, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWatch(t, ts, "room=pear.plum&version=3")

	require.True(t, st.Write("pear.plum", 3, json.RawMessage(`{"x":2}`)))
	reply := readReply(t, conn)
	assert.Equal(t, uint64(4), reply.Version)
	assert.JSONEq(t, `{"x":2}`, string(reply.Data))

	require.True(t, st.Write("pear.plum", 4, json.RawMessage(`{"x":3}`)))
	reply = readReply(t, conn)
	assert.Equal(t, uint64(5), reply.Version)
	assert.JSONEq(t, `{"x":3}`, string(reply.Data))
}

func TestWatch_SendsCurrentStateWhenBehind(t *testing.T) {
	srv := New(newRoomStore(), Options{}, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWatch(t, ts, "room=pear.plum")
	reply := readReply(t, conn)
	assert.Equal(t, uint64(3), reply.Version)
	assert.JSONEq(t, `{"x":1}`, string(reply.Data))
}

func TestWatch_UnknownRoomCloses(t *testing.T) {
	srv := New(newRoomStore(), Options{}, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWatch(t, ts, "room=fig.kiwi&version=1")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	assert.Equal(t, closeRoomNotFound, closeErr.Code)
}

func TestWatch_InvalidVersion(t *testing.T) {
	srv := New(newRoomStore(), Options{}, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch?room=pear.plum&version=abc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestWatch_SurvivesBusyRoom(t *testing.T) {
	const listTimeout = 100 * time.Millisecond
	st := newRoomStore()
	srv := New(st, Options{ListTimeout: listTimeout}, nil)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWatch(t, ts, "room=pear.plum&version=3")

	// Commit more often than the ping period, for well over the pong wait.
	const writes = 20
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for v := uint64(3); v < 3+writes; v++ {
			if !st.Write("pear.plum", v, json.RawMessage(strconv.FormatUint(v+1, 10))) {
				t.Errorf("write at version %d rejected", v)
				return
			}
			time.Sleep(30 * time.Millisecond)
		}
	}()

	var last uint64
	for last < 3+writes {
		reply := readReply(t, conn)
		require.Greater(t, reply.Version, last)
		last = reply.Version
	}
	<-writerDone

	// The connection outlives an idle period too. The client keeps reading
	// meanwhile so it answers the server's pings.
	time.AfterFunc(3*listTimeout, func() {
		st.Write("pear.plum", last, json.RawMessage(`"after"`))
	})
	reply := readReply(t, conn)
	assert.Equal(t, last+1, reply.Version)
	assert.JSONEq(t, `"after"`, string(reply.Data))
}
