package domain

import "context"

// NotificationKind enumerates the event kinds this core dispatches. Content
// rendering and the delivery mechanism (email/SMS/push) belong to the
// external notification collaborator; only dispatch is in scope here.
type NotificationKind string

const (
	NotifyOTPCode    NotificationKind = "otp_code"
	NotifyOutbid     NotificationKind = "outbid"
	NotifyWinning    NotificationKind = "winning"
	NotifyFraudAlert NotificationKind = "fraud_alert"
)

// NotificationGateway dispatches an event to the external notification
// system. Implementations must be safe for concurrent use. Dispatch failures
// are advisory: callers log them, never surface them to bidders, and never
// roll back an accepted bid because of them.
type NotificationGateway interface {
	Notify(ctx context.Context, kind NotificationKind, payload map[string]any) error
}
