// Package ipc implements the daemon's local control channel: a unix
// domain socket carrying length-prefixed JSON request/reply frames.
// Every accepted connection is served in its own goroutine; the DB's
// own mutex (see the pasd package) serializes the actual mutations, so
// handlers here never need locking of their own.
package ipc

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/nullgarden/pasd/internal/pasdlog"
)

// maxFrameSize bounds a single request/reply body to guard against a
// misbehaving client driving unbounded allocation.
const maxFrameSize = 16 << 20 // 16 MiB

// Msg is the wire envelope every request and reply is framed as: Name
// selects the operation, Body carries its JSON-encoded argument or
// result record.
type Msg struct {
	Name string          `json:"name"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Handler processes one request body and returns the reply body to
// frame back to the client.
type Handler func(ctx context.Context, body json.RawMessage) (json.RawMessage, error)

// Server listens on a unix socket and dispatches each incoming Msg by
// Name to a registered Handler.
type Server struct {
	socketPath string
	handlers   map[string]Handler
	listener   net.Listener
}

// NewServer constructs a Server bound to socketPath. Call On to
// register handlers before Listen.
func NewServer(socketPath string) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
	}
}

// On registers the handler invoked for requests named name, mirroring
// the original daemon's server.on(ClientName::Any, MsgName::Is(name), ...)
// registration.
func (s *Server) On(name string, h Handler) {
	s.handlers[name] = h
}

// Listen binds the unix socket (removing a stale one left over from an
// unclean shutdown) and accepts connections until ctx is canceled.
func (s *Server) Listen(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	pasdlog.Logger.Info().Str("socket", s.socketPath).Msg("ipc listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				pasdlog.Errorf("ipc accept failed", err)
				continue
			}
		}
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reqID := uuid.NewString()
	log := pasdlog.WithRequestID(reqID)

	reader := bufio.NewReader(conn)
	for {
		frame, err := readFrame(reader)
		if err != nil {
			if err != io.EOF {
				log.Error().Err(err).Msg("reading request frame")
			}
			return
		}

		var msg Msg
		if err := json.Unmarshal(frame, &msg); err != nil {
			log.Error().Err(err).Msg("decoding request envelope")
			return
		}

		handler, ok := s.handlers[msg.Name]
		if !ok {
			log.Warn().Str("name", msg.Name).Msg("no handler registered")
			continue
		}

		log.Debug().Str("name", msg.Name).Msg("dispatching request")
		replyBody, err := handler(ctx, msg.Body)
		if err != nil {
			log.Error().Err(err).Str("name", msg.Name).Msg("handler returned error")
		}

		reply := Msg{Name: msg.Name, Body: replyBody}
		replyFrame, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("encoding reply envelope")
			return
		}
		if err := writeFrame(conn, replyFrame); err != nil {
			log.Error().Err(err).Msg("writing reply frame")
			return
		}
	}
}

// readFrame reads a 4-byte big-endian length prefix followed by that
// many bytes, the framing both client and server use in both
// directions.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("ipc: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// Dial opens a client connection to a pasd IPC socket.
func Dial(socketPath string) (net.Conn, error) {
	return net.Dial("unix", socketPath)
}

// Call writes a single request frame and reads back the matching
// reply frame over conn. It is the client-side counterpart of Server,
// used by the CLI's status subcommand.
func Call(conn net.Conn, name string, body json.RawMessage) (Msg, error) {
	reqFrame, err := json.Marshal(Msg{Name: name, Body: body})
	if err != nil {
		return Msg{}, err
	}
	if err := writeFrame(conn, reqFrame); err != nil {
		return Msg{}, err
	}

	replyFrame, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return Msg{}, err
	}
	var reply Msg
	if err := json.Unmarshal(replyFrame, &reply); err != nil {
		return Msg{}, err
	}
	return reply, nil
}
