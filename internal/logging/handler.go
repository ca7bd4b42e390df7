package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	ConnIDKey     contextKey = "conn_id"
	SystemIDKey   contextKey = "system_id"
	RemoteAddrKey contextKey = "remote_addr"
	MessageIDKey  contextKey = "msg_id"
	RefIDKey      contextKey = "ref_id"
	CommandIDKey  contextKey = "cmd_id"
	SeqNumberKey  contextKey = "seq_num"
	WorkerIDKey   contextKey = "worker_id"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.Handler.Handle(ctx, r)
	}
	if connID, ok := ctx.Value(ConnIDKey).(int); ok {
		r.AddAttrs(slog.Int("conn_id", connID))
	}
	if sysID, ok := ctx.Value(SystemIDKey).(string); ok {
		r.AddAttrs(slog.String("system_id", sysID))
	}
	if addr, ok := ctx.Value(RemoteAddrKey).(string); ok {
		r.AddAttrs(slog.String("remote_addr", addr))
	}
	if msgID, ok := ctx.Value(MessageIDKey).(string); ok {
		r.AddAttrs(slog.String("msg_id", msgID))
	}
	if refID, ok := ctx.Value(RefIDKey).(uint16); ok {
		r.AddAttrs(slog.Int("ref_id", int(refID)))
	}
	if cmd, ok := ctx.Value(CommandIDKey).(string); ok {
		r.AddAttrs(slog.String("cmd_id", cmd))
	}
	if seq, ok := ctx.Value(SeqNumberKey).(uint32); ok {
		r.AddAttrs(slog.Uint64("seq_num", uint64(seq)))
	}
	if worker, ok := ctx.Value(WorkerIDKey).(string); ok {
		r.AddAttrs(slog.String("worker_id", worker))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the context wrapper around the derived handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the context wrapper around the derived handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Helper functions to add values to context
func ContextWithConnID(ctx context.Context, connID int) context.Context {
	return context.WithValue(ctx, ConnIDKey, connID)
}

func ContextWithSystemID(ctx context.Context, systemID string) context.Context {
	return context.WithValue(ctx, SystemIDKey, systemID)
}

func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

func ContextWithMessageID(ctx context.Context, msgID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, msgID)
}

func ContextWithRefID(ctx context.Context, refID uint16) context.Context {
	return context.WithValue(ctx, RefIDKey, refID)
}

func ContextWithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, WorkerIDKey, workerID)
}

func ContextWithPDUInfo(ctx context.Context, commandID string, seqNumber uint32) context.Context {
	ctx = context.WithValue(ctx, CommandIDKey, commandID)
	return context.WithValue(ctx, SeqNumberKey, seqNumber)
}
