package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/lifelink/internal/donor/domain"
)

// donorAlert is the wire shape published for each matched donor. Coordinates
// use the {lat, lng} JSON convention shared with the HTTP boundary.
type donorAlert struct {
	DonorID   string          `json:"donor_id"`
	Channels  []string        `json:"channels"`
	BloodType string          `json:"blood_type"`
	Location  domain.GeoPoint `json:"location"`
	Message   string          `json:"message"`
	SentAt    time.Time       `json:"sent_at"`
}

// NATSDispatcher publishes donor alerts to a NATS subject. The actual SMS or
// email delivery happens downstream; this service's contract ends at the
// publish.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSDispatcher builds a dispatcher on the provided connection.
func NewNATSDispatcher(conn *nats.Conn, subject string) *NATSDispatcher {
	if subject == "" {
		subject = "donor.alerts"
	}
	return &NATSDispatcher{conn: conn, subject: subject}
}

// Send satisfies domain.Dispatcher.
func (d *NATSDispatcher) Send(ctx context.Context, donor domain.Donor, alert domain.Alert) error {
	if d == nil || d.conn == nil {
		return nil
	}

	channels := make([]string, 0, 2)
	if donor.Preferences.SMSEnabled {
		channels = append(channels, "sms")
	}
	if donor.Preferences.EmailEnabled {
		channels = append(channels, "email")
	}

	payload, err := json.Marshal(donorAlert{
		DonorID:   donor.ID.String(),
		Channels:  channels,
		BloodType: string(alert.BloodType),
		Location:  alert.Location,
		Message:   alert.Message,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	return d.conn.PublishMsg(&nats.Msg{Subject: d.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-blood-type": {string(alert.BloodType)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// LogDispatcher records alerts instead of delivering them. Used when no NATS
// connection is configured and in tests.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher builds the logging dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs the alert and reports success.
func (d *LogDispatcher) Send(_ context.Context, donor domain.Donor, alert domain.Alert) error {
	d.logger.Info("donor alert",
		zap.String("donor_id", donor.ID.String()),
		zap.String("blood_type", string(alert.BloodType)),
		zap.String("message", alert.Message))
	return nil
}
