// Package handler exposes manual network access control over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	blockingdomain "insiderwatch/backend/internal/blocking/domain"
	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	"insiderwatch/backend/internal/netaccess"
	"insiderwatch/backend/internal/server/httpx"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// AccessSetter applies access decisions to endpoints.
type AccessSetter interface {
	SetAccess(ctx context.Context, endpointID string, allow bool) bool
}

// EndpointStore resolves and lists endpoints.
type EndpointStore interface {
	GetByID(ctx context.Context, id string) (*endpointdomain.Endpoint, error)
	ListByOrg(ctx context.Context, orgID string) ([]*endpointdomain.Endpoint, error)
}

// BlockingLister lists containment records.
type BlockingLister interface {
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*blockingdomain.BlockingRecord, error)
}

// Handler serves the network access control routes.
type Handler struct {
	access    AccessSetter
	endpoints EndpointStore
	gateways  netaccess.TopologyGateways
	blocking  BlockingLister
}

// NewHandler returns a Handler.
func NewHandler(access AccessSetter, endpoints EndpointStore, gateways netaccess.TopologyGateways, blocking BlockingLister) *Handler {
	return &Handler{access: access, endpoints: endpoints, gateways: gateways, blocking: blocking}
}

// RegisterRoutes mounts the routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/network_access_control/{organizationID}", func(r chi.Router) {
		r.Get("/histories", h.Histories)
		r.Get("/topology", h.Topology)
		r.Post("/{pcID}/{flag}", h.SetAccess)
	})
}

type setAccessResponse struct {
	PCID       string `json:"pc_id"`
	AccessFlag bool   `json:"access_flag"`
	Message    string `json:"message"`
}

// ParseFlag reads an access flag: true, 1 and allow grant access; false, 0 and block revoke it.
func ParseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "allow":
		return true, nil
	case "block":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid access flag %q", raw)
	}
	return v, nil
}

// SetAccess manually blocks or unblocks an endpoint of the organization.
func (h *Handler) SetAccess(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	pcID := chi.URLParam(r, "pcID")
	allow, err := ParseFlag(chi.URLParam(r, "flag"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err, "flag must be allow, block or a boolean")
		return
	}
	ep, err := h.endpoints.GetByID(r.Context(), pcID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to load endpoint")
		return
	}
	if ep == nil || ep.OrganizationID != orgID {
		httpx.Error(w, http.StatusNotFound, errors.New("endpoint not found"), "unknown pc for organization")
		return
	}
	if !h.access.SetAccess(r.Context(), pcID, allow) {
		httpx.Error(w, http.StatusBadGateway, errors.New("gateway update failed"), "network access control failed")
		return
	}
	httpx.JSON(w, http.StatusOK, setAccessResponse{PCID: pcID, AccessFlag: allow, Message: "network access updated"})
}

// Histories lists containment records of the organization, newest first.
func (h *Handler) Histories(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	list, err := h.blocking.ListByOrg(r.Context(), chi.URLParam(r, "organizationID"), limit)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to list blocking histories")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": list})
}

// Topology returns the gateway/endpoint graph of the organization.
func (h *Handler) Topology(w http.ResponseWriter, r *http.Request) {
	topo, err := netaccess.BuildTopology(r.Context(), chi.URLParam(r, "organizationID"), h.gateways, h.endpoints)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to build topology")
		return
	}
	httpx.JSON(w, http.StatusOK, topo)
}
