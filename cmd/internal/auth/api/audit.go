package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Auditor records security events to the log and, when a pool is set, to
// authgate.audit_log.
type Auditor struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

// NewAuditor returns an Auditor. pool may be nil.
func NewAuditor(log *slog.Logger, pool *pgxpool.Pool) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{log: log, pool: pool}
}

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, ua, mode, reason string) {
	h.audit.record(ctx, "auth.login.failed", nil, ip, ua, map[string]any{"mode": mode, "reason": reason})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua string) {
	h.audit.record(ctx, "auth.login.rate_limited", nil, ip, ua, nil)
}

func (h *Handler) auditSignIn(ctx context.Context, method, userID string, ip net.IP, ua string) {
	h.audit.record(ctx, "auth.signin.success", &userID, ip, ua, map[string]any{"method": method})
}

func (h *Handler) auditRefresh(ctx context.Context, ok bool, ip net.IP, ua string) {
	action := "auth.refresh.success"
	if !ok {
		action = "auth.refresh.fail"
	}
	h.audit.record(ctx, action, nil, ip, ua, nil)
}

func (h *Handler) auditLogout(ctx context.Context, ip net.IP, ua string) {
	h.audit.record(ctx, "auth.logout", nil, ip, ua, nil)
}

func (h *Handler) auditPasswordReset(ctx context.Context, action string, ip net.IP, ua string) {
	h.audit.record(ctx, action, nil, ip, ua, nil)
}

func (a *Auditor) record(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) {
	if a == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	attrs := []any{"action", action}
	if userID != nil {
		attrs = append(attrs, "user_id", *userID)
	}
	if ip != nil {
		attrs = append(attrs, "ip", ip.String())
	}
	for k, v := range meta {
		attrs = append(attrs, k, v)
	}
	a.log.InfoContext(ctx, "auth.audit", attrs...)

	if a.pool == nil {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO authgate.audit_log (
			user_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, userID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		a.log.ErrorContext(ctx, "auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
