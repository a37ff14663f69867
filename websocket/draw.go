package websocket

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/octree"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// DrawHandler streams the octants of a scene octree as wireframe cubes. The
// scene is identified by the "id" path value of the connection request.
type DrawHandler struct {
	// The interval between each scene change check.
	ClientStreamInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains the scenes.
	Scenes *models.SceneStore

	conn     *websocket.Conn
	clientID string
	scene    *models.Scene

	mutex       sync.Mutex
	request     *DrawRequest
	sentVersion uint64
}

func (h *DrawHandler) HandleConnect(conn *websocket.Conn) error {
	h.conn = conn
	h.conn.MaxPayloadBytes = maxMsgSize

	req := conn.Request()
	h.clientID = req.Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	v := req.PathValue("id")
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return errors.New("invalid scene id").
			WithType(ErrTypeInvalidMsg).
			WithTag("scene_id", v).
			Wrap(err)
	}

	scene, ok := h.Scenes.GetByID(uint32(id))
	if !ok {
		return errors.New("scene not found").
			WithType(models.ErrTypeSceneNotFound).
			WithTag("scene_id", id)
	}
	h.scene = scene
	return nil
}

func (h *DrawHandler) HandleDisconnect(err error) {
}

func (h *DrawHandler) HandleDrawRequest(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Draw == nil {
		return errors.New("draw request is missing").WithType(ErrTypeInvalidMsg)
	}

	if err := msg.Draw.Validate(); err != nil {
		return err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	req := *msg.Draw
	h.request = &req
	h.sendFrame(respond)
	return nil
}

func (h *DrawHandler) SendFrame(ctx context.Context, respond ResponseSender) error {
	// Scene ids are reused once removed.
	if s, ok := h.Scenes.GetByID(h.scene.ID); !ok || s != h.scene {
		return errors.New("scene has been removed").
			WithType(models.ErrTypeSceneNotFound).
			WithTag("scene_id", h.scene.ID)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.request == nil || h.scene.Version() == h.sentVersion {
		return nil
	}

	h.sendFrame(respond)
	return nil
}

func (h *DrawHandler) sendFrame(respond ResponseSender) {
	tree, _, version := h.scene.Snapshot()
	req := h.request

	frame := Frame{
		SceneID: h.scene.ID,
		Version: version,
		Cubes:   octree.WireCubes{},
	}

	switch req.Mode {
	case DrawModeAll:
		tree.Display(&frame.Cubes, req.Color)

	case DrawModeLeaves:
		tree.DisplayLeaves(&frame.Cubes, req.Color)

	case DrawModeOctant:
		tree.DisplayOctant(&frame.Cubes, req.OctantID, req.Color)
	}

	h.sentVersion = version
	respond.Send(Msg{
		Type:  MsgTypeFrame,
		Frame: &frame,
	})
}

func (h *DrawHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *DrawHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *DrawHandler) Close() {
}

func (h *DrawHandler) StreamInterval() time.Duration {
	return h.ClientStreamInterval
}

func (h *DrawHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *DrawHandler) CurrentScene() *models.Scene {
	return h.scene
}

func (h *DrawHandler) GetClientID() string {
	return h.clientID
}
