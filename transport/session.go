package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/hedeqiang/telreg/internal/syncutil"
	"github.com/hedeqiang/telreg/subscriber"
)

var log = logging.Logger("telreg/transport")

// SessionConfig tunes a Session.
type SessionConfig struct {
	// OutboxSize bounds the frames waiting to be written.
	OutboxSize int

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
}

// DefaultSessionConfig returns the settings used when a field is zero.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		OutboxSize:   64,
		WriteTimeout: 5 * time.Second,
	}
}

// Session is the server side of a remote listener. It implements
// subscriber.Listener: a push encodes the update and enqueues it without
// blocking, and a writer goroutine drains the queue onto the connection.
// A push to a full or closed session fails, which makes the registry drop
// the subscriber.
type Session struct {
	subscriber.Func

	id    subscriber.ID
	conn  *websocket.Conn
	codec Codec
	cfg   SessionConfig
	group *syncutil.Group

	mu     sync.RWMutex
	outbox chan []byte
	closed bool

	closeOnce sync.Once
}

// NewSession wraps conn and starts its writer. The writer stops when ctx
// is done or the session is closed.
func NewSession(ctx context.Context, conn *websocket.Conn, codec Codec, cfg SessionConfig) *Session {
	def := DefaultSessionConfig()
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if codec == nil {
		codec = JSON
	}

	s := &Session{
		id:     subscriber.NewID(),
		conn:   conn,
		codec:  codec,
		cfg:    cfg,
		group:  syncutil.NewGroup(ctx),
		outbox: make(chan []byte, cfg.OutboxSize),
	}
	s.Func = s.push
	s.group.Go(s.writeLoop)
	return s
}

// ID returns the identity assigned to this session.
func (s *Session) ID() subscriber.ID {
	return s.id
}

// Codec returns the codec negotiated for this session.
func (s *Session) Codec() Codec {
	return s.codec
}

func (s *Session) push(u subscriber.Update) error {
	return s.enqueue(PushFrame(u))
}

// SendError queues an error frame for the client.
func (s *Session) SendError(err error) error {
	return s.enqueue(ErrorFrame(err))
}

func (s *Session) enqueue(f Frame) error {
	data, err := s.codec.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport/session: encode %s: %w", f.Type, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return subscriber.ErrClosed
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return subscriber.ErrOverflow
	}
}

// Serve reads control frames from the client until the connection ends,
// handing listen frames to onListen. Frames of any other type are
// rejected with an error frame. Serve closes the session before it
// returns.
func (s *Session) Serve(onListen func(Frame) error) error {
	defer s.Close()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.isClosed() {
				return nil
			}
			return fmt.Errorf("transport/session: read: %w", err)
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var f Frame
		if err := s.codec.Unmarshal(data, &f); err != nil {
			log.Debugf("session %s: bad frame: %v", s.id, err)
			_ = s.SendError(fmt.Errorf("decode frame: %w", err))
			continue
		}
		if f.Type != TypeListen {
			_ = s.SendError(fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type))
			continue
		}
		if err := onListen(f); err != nil {
			log.Debugf("session %s: listen: %v", s.id, err)
			_ = s.SendError(err)
		}
	}
}

// Close flushes queued frames, bounded by the write timeout, and closes
// the connection. Pushes fail from then on.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.markClosed()

		flushed := make(chan struct{})
		go func() {
			s.group.Wait()
			close(flushed)
		}()
		select {
		case <-flushed:
		case <-time.After(s.cfg.WriteTimeout):
			_ = s.conn.Close()
		}
		s.group.Stop()

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.outbox)
	}
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.outbox:
			if !ok {
				return
			}
			if err := s.write(data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Warnf("session %s: %v", s.id, err)
				}
				s.markClosed()
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) write(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("transport/session: set deadline: %w", err)
	}
	if err := s.conn.WriteMessage(s.codec.MessageType(), data); err != nil {
		return fmt.Errorf("transport/session: write: %w", err)
	}
	return nil
}
