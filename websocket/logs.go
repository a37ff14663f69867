package websocket

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

// HandlerWithLogs logs the connection events of the given handler and
// periodically logs a summary of the messages received by type.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	userAgent string

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
	sentFrames         int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) error {
	err := h.Handler.HandleConnect(conn)
	h.userAgent = conn.Request().UserAgent()

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("user_agent", h.userAgent).
		WithTag("path", conn.Request().URL.Path)

	if err != nil {
		entry.Warn(errors.New("client connection refused").Wrap(err))
		return err
	}

	entry.WithTag("scene_id", h.sceneID()).
		Info("new client is connected")
	return nil
}

func (h *handlerWithLogs) HandleDrawRequest(ctx context.Context, respond ResponseSender, msg Msg) error {
	err := h.Handler.HandleDrawRequest(ctx, respond, msg)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", h.sceneID())
	if msg.Draw != nil {
		entry = entry.
			WithTag("mode", msg.Draw.Mode).
			WithTag("octant_id", msg.Draw.OctantID)
	}

	if err != nil {
		entry.Debug(errors.New("draw request failed").Wrap(err))
		return err
	}

	entry.Info("draw request accepted")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", h.sceneID())
	if err != nil && !errors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", h.sceneID()).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", h.sceneID()).
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", h.sceneID()).
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", h.sceneID()).
				WithTag("msg_type", msgType).
				Debug("message sent")

			if msg.Type == MsgTypeFrame {
				h.counterMutex.Lock()
				h.sentFrames++
				h.counterMutex.Unlock()
			}
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 && h.sentFrames == 0 {
		return
	}

	entry := logs.
		WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", h.sceneID()).
		WithTag("time_interval", h.summaryInterval).
		WithTag("sent_frames", h.sentFrames)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}
	h.sentFrames = 0

	entry.Info("message summary")
}

func (h *handlerWithLogs) sceneID() uint32 {
	if s := h.CurrentScene(); s != nil {
		return s.ID
	}
	return 0
}
