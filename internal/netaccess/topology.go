package netaccess

import (
	"context"
	"fmt"
	"strings"

	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	gatewaydomain "insiderwatch/backend/internal/gateway/domain"
)

// Node kinds of a Topology.
const (
	NodeGateway = "router"
	NodePC      = "pc"
)

// Node is a gateway or an endpoint of an organization's network.
type Node struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	State         string `json:"state"`
	PresentUserID string `json:"present_user_id,omitempty"`
	AccessFlag    *bool  `json:"access_flag,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	MACAddress    string `json:"mac_address,omitempty"`
}

// Edge links a gateway to an endpoint it serves.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Topology is the gateway/endpoint graph of one organization.
type Topology struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// TopologyEndpoints lists an organization's endpoints.
type TopologyEndpoints interface {
	ListByOrg(ctx context.Context, orgID string) ([]*endpointdomain.Endpoint, error)
}

// TopologyGateways lists an organization's gateways.
type TopologyGateways interface {
	ListByOrg(ctx context.Context, orgID string) ([]*gatewaydomain.Gateway, error)
}

// BuildTopology links every gateway to the endpoints whose MAC it lists as connected.
func BuildTopology(ctx context.Context, orgID string, gateways TopologyGateways, endpoints TopologyEndpoints) (*Topology, error) {
	gws, err := gateways.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	eps, err := endpoints.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	t := &Topology{Nodes: make([]Node, 0, len(gws)+len(eps)), Edges: make([]Edge, 0)}
	byMAC := make(map[string]*endpointdomain.Endpoint, len(eps))
	for _, g := range gws {
		t.Nodes = append(t.Nodes, Node{ID: gatewayNodeID(g), Type: NodeGateway, State: g.State, IPAddress: g.ControlIP})
	}
	for _, ep := range eps {
		access := ep.AccessFlag
		t.Nodes = append(t.Nodes, Node{
			ID:            ep.ID,
			Type:          NodePC,
			State:         string(ep.State),
			PresentUserID: ep.PresentUserID,
			AccessFlag:    &access,
			IPAddress:     ep.IPAddress,
			MACAddress:    ep.MACAddress,
		})
		if ep.MACAddress != "" {
			byMAC[strings.ToLower(ep.MACAddress)] = ep
		}
	}
	for _, g := range gws {
		for _, mac := range g.ConnectedMACs {
			ep, ok := byMAC[strings.ToLower(mac)]
			if !ok {
				continue
			}
			src := gatewayNodeID(g)
			t.Edges = append(t.Edges, Edge{ID: "edge-" + src + "-" + ep.ID, Source: src, Target: ep.ID})
		}
	}
	return t, nil
}

func gatewayNodeID(g *gatewaydomain.Gateway) string {
	return fmt.Sprintf("Router-%d", g.ID)
}
