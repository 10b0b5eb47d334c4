package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"dm-service/internal/observability"
	"dm-service/internal/telemetry"
)

type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (i ConnInfo) payload(reason string) telemetry.ConnPayload {
	return telemetry.ConnPayload{
		ConnID:     i.ConnID,
		DeviceID:   i.DeviceID,
		IP:         i.IP,
		TraceID:    i.TraceID,
		DurationMS: time.Since(i.ConnectedAt).Milliseconds(),
		Reason:     reason,
	}
}
