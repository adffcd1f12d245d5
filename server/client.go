package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/ringchan"
)

const writeWait = 5 * time.Second

// client is one WebSocket connection. Replies are written directly; stream
// events go through a bounded ring so loop-side sinks never block on the socket.
type client struct {
	id     string
	conn   *websocket.Conn
	logger *logrus.Entry

	writeMu sync.Mutex
	events  *ringchan.RingChannel[Event]

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(parent context.Context, conn *websocket.Conn, buffer int, logger *logrus.Logger) *client {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &client{
		id:     id,
		conn:   conn,
		logger: logger.WithField("client", id),
		events: ringchan.New[Event](buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *client) reply(r Reply) {
	if err := c.write(r); err != nil {
		c.logger.WithError(err).WithField("id", r.ID).Debug("Failed to write reply")
	}
}

// push queues a stream event. It is called from the session loop and never blocks.
func (c *client) push(stream string, payload any) {
	if c.events.ForceSend(Event{Type: TypeEvent, Stream: stream, Payload: payload}) {
		c.logger.WithField("stream", stream).Warn("Event buffer full, dropped oldest event")
	}
}

func (c *client) writeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events.C():
			if !ok {
				return
			}
			if err := c.write(ev); err != nil {
				c.logger.WithError(err).Debug("Failed to write event")
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		c.events.Close()
		_ = c.conn.Close()
	})
}
