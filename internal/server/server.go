// Package server exposes the memory engine to assistant processes over
// stdio: one synchronous request/response loop per connection. Requests
// are handled one at a time to completion; concurrency across
// connections is serialized by the store's transactions, never here.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/session"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/oklog/ulid/v2"
)

// Server answers protocol requests for one project.
type Server struct {
	manager *session.Manager
	journal *journal.Journal
	cfg     config.ServerConfig
	reader  *bufio.Reader
	writer  io.Writer
	frame   framing
}

func New(m *session.Manager, j *journal.Journal, cfg config.ServerConfig, in io.Reader, out io.Writer) *Server {
	if cfg.MaxEventsDefault <= 0 {
		cfg.MaxEventsDefault = config.DefaultServerMaxEvents
	}
	if cfg.MaxEventsCap <= 0 {
		cfg.MaxEventsCap = config.DefaultServerMaxEventsCap
	}
	return &Server{
		manager: m,
		journal: j,
		cfg:     cfg,
		reader:  bufio.NewReader(in),
		writer:  out,
	}
}

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	Result any        `json:"result,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Serve reads requests until EOF or context cancellation. Handler
// errors, StoreBusy included, become structured error responses and the
// loop keeps serving; only the connection itself failing ends it.
func (s *Server) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.frame == nil {
			fr, err := detectFraming(s.reader, s.writer)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			s.frame = fr
		}

		body, err := s.frame.read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if kerr.IsCategory(err, kerr.ErrProtocol) && s.frame.recoverable() {
				if werr := s.respond(errorResponse(err)); werr != nil {
					return werr
				}
				continue
			}
			return err
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			continue
		}

		// Each request carries its own trace id through the handlers so
		// log lines from one exchange correlate across the store calls.
		reqCtx := logger.WithTraceID(ctx, ulid.Make().String())
		if err := s.respond(s.dispatch(reqCtx, body)); err != nil {
			return err
		}
	}
}

func (s *Server) respond(resp response) error {
	out, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return s.frame.write(out)
}

func errorResponse(err error) response {
	return response{Error: &errorBody{Kind: kerr.Category(err), Message: err.Error()}}
}

func (s *Server) dispatch(ctx context.Context, body []byte) response {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(kerr.Protocol("request is not a JSON object"))
	}
	if req.Method == "" {
		return errorResponse(kerr.Protocol("request is missing a method"))
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case "ping":
		result, err = s.handlePing(ctx, req.Params)
	case "get_context":
		result, err = s.handleGetContext(ctx, req.Params)
	case "append_event":
		result, err = s.handleAppendEvent(ctx, req.Params)
	case "start_chat_session":
		result, err = s.handleStartChat(ctx, req.Params)
	case "stop_chat_session":
		result, err = s.handleStopChat(ctx, req.Params)
	default:
		err = kerr.Protocol(fmt.Sprintf("unknown method %q", req.Method))
	}
	if err != nil {
		slog.Warn("Request failed",
			"method", req.Method,
			"kind", kerr.Category(err),
			"trace_id", logger.GetTraceID(ctx),
			"project_id", logger.GetProjectID(ctx),
			"error", err)
		return errorResponse(err)
	}
	slog.Debug("Request handled",
		"method", req.Method, "trace_id", logger.GetTraceID(ctx))
	return response{Result: result}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return kerr.Protocol("params do not match the method's shape")
	}
	return nil
}

type pingParams struct {
	Client string `json:"client"`
}

func (s *Server) handlePing(ctx context.Context, raw json.RawMessage) (any, error) {
	var p pingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Client == "" {
		return nil, kerr.Validation("ping requires a client tag")
	}
	err := s.journal.Store().Update(ctx, func(tx *store.Tx) error {
		tx.State.SetSource(p.Client, "available", "heartbeat", tx.Now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

type getContextParams struct {
	MaxEvents             int  `json:"max_events"`
	IncludeEffectiveState bool `json:"include_effective_state"`
}

func (s *Server) handleGetContext(ctx context.Context, raw json.RawMessage) (any, error) {
	var p getContextParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MaxEvents <= 0 {
		p.MaxEvents = s.cfg.MaxEventsDefault
	}
	if p.MaxEvents > s.cfg.MaxEventsCap {
		p.MaxEvents = s.cfg.MaxEventsCap
	}

	events, err := s.journal.Query(ctx, journal.Filter{MaxEvents: p.MaxEvents})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []journal.Event{}
	}
	result := map[string]any{"events": events}

	if p.IncludeEffectiveState {
		status, err := s.manager.Status(ctx)
		if err != nil {
			return nil, err
		}
		result["effective_state"] = status
	}
	return result, nil
}

type appendEventParams struct {
	Client       string   `json:"client"`
	EventType    string   `json:"event_type"`
	Summary      string   `json:"summary"`
	FilesTouched []string `json:"files_touched"`
}

func (s *Server) handleAppendEvent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p appendEventParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Client == "" {
		return nil, kerr.Validation("append_event requires a client tag")
	}

	var id int64
	err := s.journal.Store().Update(ctx, func(tx *store.Tx) error {
		active := tx.State.ActiveRecording()
		if active == nil {
			return kerr.Wrap(kerr.ErrNoActiveSession, "append_event")
		}
		var err error
		id, err = journal.AppendTx(tx, active.ID, journal.Draft{
			Type:         journal.SanitizeType(p.EventType),
			Source:       p.Client,
			Summary:      p.Summary,
			FilesTouched: p.FilesTouched,
		}, journal.Config{})
		if err != nil {
			return err
		}
		tx.State.SetSource(p.Client, "available", "append_event", tx.Now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

type startChatParams struct {
	Client string `json:"client"`
}

func (s *Server) handleStartChat(ctx context.Context, raw json.RawMessage) (any, error) {
	var p startChatParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sess, err := s.manager.StartChat(ctx, p.Client)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sess.ID}, nil
}

type stopChatParams struct {
	SessionID int64 `json:"session_id"`
}

func (s *Server) handleStopChat(ctx context.Context, raw json.RawMessage) (any, error) {
	var p stopChatParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := s.manager.StopChat(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return map[string]any{"status": "stopped"}, nil
}
