package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/metrics"
	"insiderwatch/backend/internal/telemetry"
	teldomain "insiderwatch/backend/internal/telemetry/domain"
)

// RecipientSource resolves the security managers of an organization.
type RecipientSource interface {
	SecurityManagerEmails(ctx context.Context, orgID string) ([]string, error)
}

// Mailer sends a composed email.
type Mailer interface {
	Send(ctx context.Context, recipients []string, e Email) error
}

// Fanout delivers alerts over the live channel and by email.
type Fanout struct {
	hub        *Hub
	recipients RecipientSource
	mailer     Mailer
	emitter    telemetry.EventEmitter
}

// NewFanout returns a Fanout. mailer and emitter may be nil.
func NewFanout(hub *Hub, recipients RecipientSource, mailer Mailer, emitter telemetry.EventEmitter) *Fanout {
	return &Fanout{hub: hub, recipients: recipients, mailer: mailer, emitter: emitter}
}

// Broadcast sends a to the live subscribers of its organization and returns how many received it.
func (f *Fanout) Broadcast(ctx context.Context, a Alert) int {
	n := f.hub.Broadcast(ctx, a.OrganizationID, a)
	logger.Get().Info("alert: live alert broadcast",
		zap.String("organization_id", a.OrganizationID),
		zap.String("pc_id", a.EndpointID),
		zap.Int("delivered", n))
	f.emit(ctx, a, ChannelWebsocket, n > 0)
	return n
}

// Email sends a to the security managers of its organization.
func (f *Fanout) Email(ctx context.Context, a Alert) error {
	if f.mailer == nil {
		return ErrMailerNotConfigured
	}
	to, err := f.recipients.SecurityManagerEmails(ctx, a.OrganizationID)
	if err != nil {
		return fmt.Errorf("load security managers: %w", err)
	}
	if len(to) == 0 {
		logger.Get().Warn("alert: organization has no security managers", zap.String("organization_id", a.OrganizationID))
		return nil
	}
	e, err := ComposeEmail(a)
	if err != nil {
		return err
	}
	err = f.mailer.Send(ctx, to, e)
	metrics.AlertDeliveries.WithLabelValues(ChannelEmail, metrics.Result(err == nil)).Inc()
	f.emit(ctx, a, ChannelEmail, err == nil)
	if err != nil {
		return err
	}
	logger.Get().Info("alert: email sent", zap.String("organization_id", a.OrganizationID), zap.Int("recipients", len(to)))
	return nil
}

func (f *Fanout) emit(ctx context.Context, a Alert, channel string, ok bool) {
	ev := teldomain.NewEvent(a.OrganizationID, teldomain.EventAlert, map[string]any{
		"channel": channel,
		"ok":      ok,
		"type":    a.Type,
	})
	ev.UserID = a.UserID
	ev.EndpointID = a.EndpointID
	telemetry.EmitAsync(ctx, f.emitter, ev)
}
