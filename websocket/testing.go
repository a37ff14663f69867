package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Creates a testing environement to unit test handlers. The returned dial
// function connects a client to the debug-draw stream of the given scene.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (func(sceneID uint32) *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	dial, close := newTestingEnv(t, newHandler)
	return dial, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (func(sceneID uint32) *websocket.Conn, func()) {
	var mux http.ServeMux
	mux.Handle("GET /scenes/{id}/draw", websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})
	server := httptest.NewServer(&mux)

	var connMutex sync.Mutex
	var conns []*websocket.Conn

	dial := func(sceneID uint32) *websocket.Conn {
		config, err := websocket.NewConfig(
			fmt.Sprintf("%s/scenes/%d/draw", strings.ReplaceAll(server.URL, "http://", "ws://"), sceneID),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set(HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		connMutex.Lock()
		conns = append(conns, conn)
		connMutex.Unlock()
		return conn
	}

	return dial, func() {
		connMutex.Lock()
		for _, conn := range conns {
			conn.Close()
		}
		connMutex.Unlock()
		server.Close()
	}
}

// SendTestMsg sends a message to the server and fails the test on error.
func SendTestMsg(t *testing.T, conn *websocket.Conn, msg Msg) {
	if _, err := Send(conn, msg); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// ReceiveTestMsg waits for the next message of the given type, skipping the
// others, and fails the test when none is received within a second.
func ReceiveTestMsg(t *testing.T, conn *websocket.Conn, msgType MsgType) Msg {
	conn.SetReadDeadline(time.Now().Add(time.Second))
	defer conn.SetReadDeadline(time.Time{})

	for {
		msg, _, err := Receive(conn)
		if err != nil {
			t.Fatalf("error receiving %s message: %s", msgType, err)
		}

		if msg.Type == msgType {
			return msg
		}
	}
}
