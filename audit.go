package authsession

import (
	"context"
	"errors"
	"io"

	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/sirupsen/logrus"
)

type (
	// AuditEvent is one session lifecycle outcome.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink discards events.
	NoOpSink = audit.NoOpSink
	// ChannelSink delivers events on a buffered channel.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes one JSON object per line.
	JSONWriterSink = audit.JSONWriterSink
	// LogSink writes events through logrus.
	LogSink = audit.LogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink logs successes at info and failures at warn.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return audit.NewLogSink(logger)
}

const (
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventSignupSuccess     = "signup_success"
	auditEventSignupFailure     = "signup_failure"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshFailure    = "refresh_failure"
	auditEventSessionCleared    = "session_cleared"
	auditEventSessionRestored   = "session_restored"
	auditEventSignOut           = "sign_out"
	auditEventSignOutEverywhere = "sign_out_everywhere"
)

// AuditErrorCode is the stable error label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrValidation         AuditErrorCode = "validation_failed"
	auditErrNetwork            AuditErrorCode = "network_unavailable"
	auditErrProvider           AuditErrorCode = "provider_error"
	auditErrDecode             AuditErrorCode = "decode_failed"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrAutoLogin          AuditErrorCode = "auto_login_failed"
	auditErrRecordCorrupt      AuditErrorCode = "record_corrupt"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	subject string,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		Subject:   subject,
		Username:  username,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAutoLoginFailed):
		return auditErrAutoLogin
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidation
	case errors.Is(err, ErrNetworkUnavailable):
		return auditErrNetwork
	case errors.Is(err, ErrProviderError):
		return auditErrProvider
	case errors.Is(err, ErrDecode):
		return auditErrDecode
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrRecordCorrupt):
		return auditErrRecordCorrupt
	default:
		return auditErrInternal
	}
}
