// Package netaccess isolates endpoints by editing the firewall deny-list of the gateway serving them.
package netaccess

import (
	"context"
	"net/netip"

	"go.uber.org/zap"

	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	gatewaydomain "insiderwatch/backend/internal/gateway/domain"
	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/metrics"
	"insiderwatch/backend/internal/telemetry"
	teldomain "insiderwatch/backend/internal/telemetry/domain"
)

// Actions reported in metrics and telemetry.
const (
	ActionBlock = "block"
	ActionAllow = "allow"
)

// EndpointStore resolves endpoints and stores their access flag.
type EndpointStore interface {
	GetByID(ctx context.Context, id string) (*endpointdomain.Endpoint, error)
	SetAccessFlag(ctx context.Context, id string, allow bool) (bool, error)
}

// GatewayStore finds the gateway serving a hardware address.
type GatewayStore interface {
	FindByConnectedMAC(ctx context.Context, mac string) (*gatewaydomain.Gateway, error)
}

// CommandRunner runs a shell command on a gateway.
type CommandRunner interface {
	Run(ctx context.Context, host, command string) (string, error)
}

// Controller applies access decisions to endpoints.
type Controller struct {
	endpoints EndpointStore
	gateways  GatewayStore
	runner    CommandRunner
	emitter   telemetry.EventEmitter
}

// NewController returns a Controller. emitter may be nil.
func NewController(endpoints EndpointStore, gateways GatewayStore, runner CommandRunner, emitter telemetry.EventEmitter) *Controller {
	return &Controller{endpoints: endpoints, gateways: gateways, runner: runner, emitter: emitter}
}

// SetAccess blocks (allow=false) or unblocks the endpoint. It returns false when the endpoint,
// its addresses or its gateway cannot be resolved, or when the gateway command fails; false means
// the endpoint is not guaranteed to be in the requested state.
func (c *Controller) SetAccess(ctx context.Context, endpointID string, allow bool) bool {
	action := ActionAllow
	if !allow {
		action = ActionBlock
	}
	log := logger.Get().With(zap.String("pc_id", endpointID), zap.String("action", action))

	ep, err := c.endpoints.GetByID(ctx, endpointID)
	if err != nil {
		log.Error("netaccess: load endpoint", zap.Error(err))
		return c.finish(ctx, nil, action, false)
	}
	if ep == nil {
		log.Warn("netaccess: endpoint not found")
		return c.finish(ctx, nil, action, false)
	}
	if _, err := c.endpoints.SetAccessFlag(ctx, endpointID, allow); err != nil {
		log.Error("netaccess: store access flag", zap.Error(err))
		return c.finish(ctx, ep, action, false)
	}
	if _, err := netip.ParseAddr(ep.IPAddress); err != nil {
		log.Warn("netaccess: endpoint has no usable IP address", zap.String("ip", ep.IPAddress))
		return c.finish(ctx, ep, action, false)
	}
	if !ValidMAC(ep.MACAddress) {
		log.Warn("netaccess: endpoint has no valid MAC address", zap.String("mac", ep.MACAddress))
		return c.finish(ctx, ep, action, false)
	}
	gw, err := c.gateways.FindByConnectedMAC(ctx, ep.MACAddress)
	if err != nil {
		log.Error("netaccess: find gateway", zap.Error(err))
		return c.finish(ctx, ep, action, false)
	}
	if gw == nil {
		log.Warn("netaccess: no gateway serves endpoint", zap.String("mac", ep.MACAddress))
		return c.finish(ctx, ep, action, false)
	}

	cmd := BlockCommand(ep.MACAddress)
	if allow {
		cmd = AllowCommand(ep.MACAddress)
	}
	out, err := c.runner.Run(ctx, gw.ControlIP, cmd)
	if err != nil {
		log.Error("netaccess: gateway command failed",
			zap.String("gateway", gw.ControlIP), zap.String("output", out), zap.Error(err))
		return c.finish(ctx, ep, action, false)
	}
	log.Info("netaccess: gateway updated", zap.String("gateway", gw.ControlIP), zap.String("mac", ep.MACAddress))
	return c.finish(ctx, ep, action, true)
}

func (c *Controller) finish(ctx context.Context, ep *endpointdomain.Endpoint, action string, ok bool) bool {
	metrics.ContainmentActions.WithLabelValues(action, metrics.Result(ok)).Inc()
	if ep != nil {
		ev := teldomain.NewEvent(ep.OrganizationID, teldomain.EventContainment, map[string]any{
			"action": action,
			"ok":     ok,
		})
		ev.EndpointID = ep.ID
		telemetry.EmitAsync(ctx, c.emitter, ev)
	}
	return ok
}
