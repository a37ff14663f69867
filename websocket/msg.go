package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	// The header a client can set to identify itself.
	HeaderClientID = "X-Octant-Client-Id"

	ErrTypeInvalidMsg = "ws_invalid_msg"

	// The max size of a received message.
	maxMsgSize = 1 << 16
)

type MsgType string

const (
	MsgTypeDrawRequest MsgType = "draw_request"
	MsgTypeFrame       MsgType = "frame"
	MsgTypeError       MsgType = "error"
)

// DrawMode selects the octants drawn in a frame.
type DrawMode string

const (
	DrawModeAll    DrawMode = "all"
	DrawModeLeaves DrawMode = "leaves"
	DrawModeOctant DrawMode = "octant"
)

// Msg is a message exchanged with a debug-draw client, encoded in JSON.
type Msg struct {
	Type  MsgType      `json:"type"`
	Draw  *DrawRequest `json:"draw,omitempty"`
	Frame *Frame       `json:"frame,omitempty"`
	Error *ErrorMsg    `json:"error,omitempty"`
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// DrawRequest asks for the octants to stream.
type DrawRequest struct {
	Mode DrawMode `json:"mode"`

	// The octant drawn with DrawModeOctant.
	OctantID uint32 `json:"octant_id,omitempty"`

	Color mgl32.Vec3 `json:"color"`
}

func (r DrawRequest) Validate() error {
	switch r.Mode {
	case DrawModeAll, DrawModeLeaves, DrawModeOctant:
	default:
		return errors.New("unknown draw mode").
			WithType(ErrTypeInvalidMsg).
			WithTag("mode", r.Mode)
	}

	for _, c := range r.Color {
		if c < 0 || c > 1 {
			return errors.New("color components must be between 0 and 1").
				WithType(ErrTypeInvalidMsg).
				WithTag("color", r.Color)
		}
	}
	return nil
}

// Frame is a set of wireframe cubes drawn from a scene octree.
type Frame struct {
	SceneID uint32           `json:"scene_id"`
	Version uint64           `json:"version"`
	Cubes   octree.WireCubes `json:"cubes"`
}

type ErrorMsg struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func errorMsg(err error) Msg {
	return Msg{
		Type: MsgTypeError,
		Error: &ErrorMsg{
			Type:    errors.Type(err),
			Message: err.Error(),
		},
	}
}

// A function that receives a message.
type Receiver func() (Msg, int, error)

// A function that sends a message.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to the client.
type ResponseSender interface {
	Send(Msg)
}

// Receive reads a message from the given connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return Msg{}, len(b), errors.New("decoding message failed").
			WithType(ErrTypeInvalidMsg).
			Wrap(err)
	}
	return msg, len(b), nil
}

// Send writes a message to the given connection.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
