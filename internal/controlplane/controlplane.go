// Package controlplane exposes the running gateway's in-memory process
// registry, execution-thread managers, and context manager to the
// chorus CLI over a local unix socket, so "chorus process|thread|context"
// subcommands (core-level mirrors of the /process, /thread, /context
// Discord slash commands) can reach live state from a separate OS
// process. This is deliberately a minimal JSON-line protocol rather
// than a full RPC framework: exactly one local caller, one connection
// per command, no external dependency earns its keep here.
package controlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/chorus-run/chorus/internal/agent"
	"github.com/chorus-run/chorus/internal/contextmgr"
	"github.com/chorus-run/chorus/internal/supervisor"
)

// SocketPath returns the control socket path under a chorus home.
func SocketPath(home string) string {
	return filepath.Join(home, "control.sock")
}

// Request is one control-plane call.
type Request struct {
	Op    string            `json:"op"`
	Agent string            `json:"agent,omitempty"`
	Args  map[string]string `json:"args,omitempty"`
}

// Response carries either Data or Error, never both.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Server binds the process supervisor, agent host, and context manager
// of one running gateway to a unix socket listener.
type Server struct {
	sup      *supervisor.Supervisor
	host     *agent.Host
	ctxMgr   *contextmgr.Manager
	listener net.Listener
}

// NewServer constructs a Server over the gateway's live collaborators.
func NewServer(sup *supervisor.Supervisor, host *agent.Host, ctxMgr *contextmgr.Manager) *Server {
	return &Server{sup: sup, host: host, ctxMgr: ctxMgr}
}

// Serve listens on path (removing any stale socket file first) until
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("controlplane: listen: %w", err)
	}
	s.listener = ln
	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		writeResponse(conn, Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	data, err := s.dispatch(ctx, req)
	if err != nil {
		writeResponse(conn, Response{Error: err.Error()})
		return
	}
	writeResponse(conn, Response{OK: true, Data: data})
}

func writeResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Warn("controlplane: write response", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Op {
	case "process.list":
		return s.sup.ListProcesses(req.Agent), nil
	case "process.kill":
		pid, err := intArg(req.Args, "pid")
		if err != nil {
			return nil, err
		}
		return nil, s.sup.KillProcess(ctx, pid)
	case "process.logs":
		pid, err := intArg(req.Args, "pid")
		if err != nil {
			return nil, err
		}
		return s.sup.RollingTail(pid), nil
	case "thread.list":
		rt, err := s.runtime(req.Agent)
		if err != nil {
			return nil, err
		}
		return rt.Threads().ListAll(), nil
	case "thread.kill":
		rt, err := s.runtime(req.Agent)
		if err != nil {
			return nil, err
		}
		id, err := intArg(req.Args, "id")
		if err != nil {
			return nil, err
		}
		if !rt.Threads().KillThread(id) {
			return nil, fmt.Errorf("thread %d not found", id)
		}
		return nil, nil
	case "thread.break-context":
		rt, err := s.runtime(req.Agent)
		if err != nil {
			return nil, err
		}
		rt.Threads().BreakMainThread()
		return nil, nil
	case "context.clear":
		s.ctxMgr.Clear(req.Agent)
		return nil, nil
	case "context.save":
		return s.ctxMgr.SaveSnapshot(ctx, req.Agent, req.Args["description"])
	case "context.history":
		return s.ctxMgr.ListSnapshots(ctx, req.Agent)
	case "context.restore":
		return s.ctxMgr.RestoreSnapshot(ctx, req.Agent, req.Args["session"])
	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

func (s *Server) runtime(agentName string) (*agent.AgentRuntime, error) {
	rt, ok := s.host.Get(agentName)
	if !ok {
		return nil, fmt.Errorf("agent %q not running", agentName)
	}
	return rt, nil
}

func intArg(args map[string]string, key string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(args[key], "%d", &v); err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, args[key])
	}
	return v, nil
}

// Call dials the control socket at path and sends one request, decoding
// the response. Used by the CLI, a separate process from the gateway.
func Call(path string, req Request) (Response, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("connect to gateway control socket: %w (is \"chorus gateway\" running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}
