package logger

import (
	"context"
	"fmt"

	"custodia/pkg/audit"
)

// Convenience helpers build correctly shaped events for the common producers
// so call sites cannot get the taxonomy wrong.

// LogLogin records an authentication attempt. Failures become LOGIN_FAILED
// with ResultFailure; both outcomes are security-level.
func (l *Logger) LogLogin(ctx context.Context, userID, userEmail, userIP string, success bool, metadata map[string]any) error {
	action := audit.ActionLogin
	result := audit.ResultSuccess
	message := "user login succeeded"
	if !success {
		action = audit.ActionLoginFailed
		result = audit.ResultFailure
		message = "user login failed"
	}
	event, err := audit.NewEvent(action, "auth", message,
		audit.WithUser(userID),
		audit.WithUserEmail(userEmail),
		audit.WithUserIP(userIP),
		audit.WithLevel(audit.LevelSecurity),
		audit.WithResult(result),
		audit.WithMetadata(metadata),
	)
	if err != nil {
		return err
	}
	return l.Log(ctx, event)
}

// LogDataAccess records a routine read/write against a resource at LevelInfo.
func (l *Logger) LogDataAccess(ctx context.Context, userID string, action audit.Action, resourceType, resourceID string, metadata map[string]any) error {
	event, err := audit.NewEvent(action, resourceType,
		fmt.Sprintf("%s %s %s", string(action), resourceType, resourceID),
		audit.WithUser(userID),
		audit.WithResourceID(resourceID),
		audit.WithMetadata(metadata),
	)
	if err != nil {
		return err
	}
	return l.Log(ctx, event)
}

// LogConfigChange records a configuration mutation. The old and new values go
// into the encrypted payload; the key stays queryable as the resource ID.
func (l *Logger) LogConfigChange(ctx context.Context, userID, configKey string, oldValue, newValue any) error {
	event, err := audit.NewEvent(audit.ActionConfigChange, "config",
		fmt.Sprintf("configuration %q changed", configKey),
		audit.WithUser(userID),
		audit.WithResourceID(configKey),
		audit.WithLevel(audit.LevelWarning),
		audit.WithSensitiveData(map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		}),
	)
	if err != nil {
		return err
	}
	return l.Log(ctx, event)
}

// LogSecurityEvent records a security incident with the extended retention
// that comes with LevelSecurity.
func (l *Logger) LogSecurityEvent(ctx context.Context, userID string, action audit.Action, message, userIP string, metadata map[string]any) error {
	event, err := audit.NewEvent(action, "security", message,
		audit.WithUser(userID),
		audit.WithUserIP(userIP),
		audit.WithLevel(audit.LevelSecurity),
		audit.WithMetadata(metadata),
	)
	if err != nil {
		return err
	}
	return l.Log(ctx, event)
}
