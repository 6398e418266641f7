package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/ledger"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/protocol"
	"github.com/cruciblehq/kiln/internal/runtime"
)

const (

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "kiln"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660
)

// Holds server configuration.
type Config struct {
	SocketPath          string // Override for the Unix socket path. Empty uses the default.
	PIDFile             string // Override for the PID file. Empty uses the default.
	LedgerPath          string // Build ledger database. Empty uses the default.
	ContainerdAddress   string // Containerd socket address. Empty uses [runtime.DefaultAddress].
	ContainerdNamespace string // Containerd namespace for images and containers. Empty uses [runtime.DefaultNamespace].
	Snapshotter         string // Snapshotter for stage containers. Empty uses [runtime.DefaultSnapshotter].
	Jobs                int    // Targets built at once per release. Zero builds all at once.
}

// Listens on a Unix domain socket and runs one command per connection.
//
// Commands run under a context that is cancelled when the server stops or
// the client disconnects. The ledger and containerd client are released only
// after every in-flight command has returned.
type Server struct {
	socketPath string
	pidFile    string
	engine     build.Engine
	runtime    *runtime.Runtime // Behind engine; nil when the engine was supplied.
	ledger     *ledger.Ledger
	jobs       int // Concurrent targets per release.

	ctx      context.Context // Parent of every command's context.
	cancel   context.CancelFunc
	listener net.Listener
	conns    sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	freeOnce sync.Once

	mu        sync.Mutex
	startedAt time.Time
	builds    int // Build and release commands completed.
	active    int // Build and release commands in progress.
}

// Creates a server connected to containerd. The socket is not opened until
// [Server.Start] is called.
func New(cfg Config) (*Server, error) {
	rt, err := runtime.New(cfg.ContainerdAddress, cfg.ContainerdNamespace, cfg.Snapshotter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	l, err := ledger.Open(or(cfg.LedgerPath, paths.Ledger()))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	s := newServer(cfg, build.NewEngine(rt), l)
	s.runtime = rt
	return s, nil
}

func newServer(cfg Config, eng build.Engine, l *ledger.Ledger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: or(cfg.SocketPath, paths.Socket()),
		pidFile:    or(cfg.PIDFile, paths.PIDFile()),
		engine:     eng,
		ledger:     l,
		jobs:       cfg.Jobs,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Opens the socket and begins accepting connections.
//
// Containers left by a daemon that died mid-build are removed first; none
// of this server's builds can be running yet.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(s.pidFile); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	if s.runtime != nil {
		if _, err := s.runtime.Prune(s.ctx); err != nil {
			slog.Warn("failed to prune stale containers", "error", err)
		}
	}

	slog.Info("server listening on socket", "path", s.socketPath)
	go s.accept()
	return nil
}

// Creates the socket, replacing a stale one, and restricts it to the owner
// and the kiln group.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := os.Chmod(socketPath, socketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}
	if gid, ok := groupID(socketGroup); ok {
		if err := os.Chown(socketPath, -1, gid); err != nil {
			slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
		}
	} else {
		slog.Debug("socket group not found, socket accessible to owner only", "group", socketGroup)
	}
	return listener, nil
}

func groupID(name string) (int, bool) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	gid, err := strconv.Atoi(g.Gid)
	return gid, err == nil
}

// Stops accepting connections, cancels in-flight commands and waits for
// them to return before releasing the ledger and the containerd client.
// Safe to call more than once and from a command handler's goroutine.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		close(s.done)
	})

	s.conns.Wait()

	s.freeOnce.Do(func() {
		if s.ledger != nil {
			if err := s.ledger.Close(); err != nil {
				slog.Warn("failed to close ledger", "error", err)
			}
		}
		if s.runtime != nil {
			s.runtime.Close()
		}
		os.Remove(s.socketPath)
		os.Remove(s.pidFile)
	})
	return nil
}

// Returns a channel closed once the server begins stopping.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(conn)
		}()
	}
}

// Largest request line accepted.
const maxRequest = 1 << 20

// Reads one newline-terminated request, runs it and writes one response.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(io.LimitReader(conn, maxRequest))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("command received", "command", env.Command)

	ctx, cancel := contextWithDisconnect(s.ctx, reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdPlan:
		s.handlePlan(conn, payload)
	case protocol.CmdBuild:
		s.handleBuild(ctx, conn, payload, build.Build)
	case protocol.CmdRelease:
		s.handleBuild(ctx, conn, payload, build.Release)
	case protocol.CmdHistory:
		s.handleHistory(ctx, conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		slog.Debug("write response failed", "command", cmd, "error", err)
	}
}

// Writes the daemon PID for service managers and the CLI.
func writePID(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(file, []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}

// Returns a context cancelled when the peer closes the connection, detected
// by a background read on r. No further request data may be expected on r.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		r.Read(make([]byte, 1))
		cancel()
	}()
	return ctx, cancel
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
