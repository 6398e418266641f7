package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/planner"
	"github.com/cruciblehq/kiln/internal/project"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Entries returned by a history command without a limit.
const defaultHistoryLimit = 20

// Signature shared by [build.Build] and [build.Release].
type buildFunc func(context.Context, build.Engine, build.Options) (*build.Result, error)

// Handles a plan command.
//
// Loads the project and computes its dependency recipe without touching the
// container runtime.
func (s *Server) handlePlan(conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.PlanRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	proj, err := project.Open(req.Project)
	if err != nil {
		s.respondError(conn, fmt.Errorf("%w: %w", build.ErrConfig, err))
		return
	}

	recipe, err := planner.Plan(proj.Source)
	if err != nil {
		s.respondError(conn, fmt.Errorf("%w: %w", build.ErrConfig, err))
		return
	}

	fingerprint, err := planner.Fingerprint(proj.Source)
	if err != nil {
		s.respondError(conn, fmt.Errorf("%w: %w", build.ErrConfig, err))
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.PlanResult{
		Recipe:      recipe.Digest().String(),
		Fingerprint: fingerprint,
		Manifests:   len(recipe.Manifests),
		Locked:      recipe.Locked(),
		Packages:    recipe.LocalPackages(),
	})
}

// Handles a build or release command.
//
// Loads the project named by the request and runs run against the engine.
// Failures carry the build's failure class.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage, run buildFunc) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	proj, err := project.Open(req.Project)
	if err != nil {
		s.respondError(conn, fmt.Errorf("%w: %w", build.ErrConfig, err))
		return
	}

	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.builds++
		s.mu.Unlock()
	}()

	result, err := run(ctx, s.engine, build.Options{
		Project:   proj,
		Platforms: req.Platforms,
		Output:    req.Output,
		Ledger:    s.ledger,
		Jobs:      s.jobs,
	})
	if err != nil {
		s.respondError(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, result.Report())
}

// Handles a history command.
func (s *Server) handleHistory(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.HistoryRequest](payload)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries, err := build.History(ctx, s.ledger, req.Platform, limit)
	if err != nil {
		s.respondError(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.HistoryResult{Entries: entries})
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds, active := s.builds, s.active
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
		Active:  active,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}

// Writes err as an error response tagged with its failure class.
func (s *Server) respondError(conn net.Conn, err error) {
	slog.Error("command failed", "error", err)
	s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
		Message: err.Error(),
		Class:   build.Class(err),
	})
}
