package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides keyed by "METHOD pattern".
var routeOverrides = map[string]ActionResource{
	http.MethodPost + " /api/v1/network_access_control/{organizationID}/{pcID}/{flag}": {Action: "access_changed", Resource: "pc"},
	http.MethodGet + " /api/v1/anomaly_detect/{organizationID}":                        {Action: "detection_run", Resource: "anomaly_detection"},
}

// ParseRoute returns action and resource for a chi route pattern
// (e.g. POST /api/v1/network_access_control/{organizationID}/{pcID}/{flag}).
// Action is a verb derived from the method: get, create, update, delete.
// Resource is the first path segment after the API version.
func ParseRoute(method, pattern string) ActionResource {
	if ar, ok := routeOverrides[method+" "+pattern]; ok {
		return ar
	}
	return ActionResource{Action: methodToAction(method), Resource: patternToResource(pattern)}
}

func patternToResource(pattern string) string {
	// /api/v1/anomaly_detect/{organizationID}/histories -> anomaly_detect
	segs := strings.Split(strings.Trim(pattern, "/"), "/")
	for i, s := range segs {
		if s == "" || s == "api" || strings.HasPrefix(s, "{") {
			continue
		}
		if i > 0 && segs[i-1] == "api" {
			continue
		}
		return s
	}
	return "unknown"
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// Audited reports whether requests with method on pattern are written to the audit log.
// Mutating requests and explicit overrides are audited; ingestion is not.
func Audited(method, pattern string) bool {
	if strings.HasPrefix(pattern, "/api/v1/log_collector") {
		return false
	}
	if _, ok := routeOverrides[method+" "+pattern]; ok {
		return true
	}
	return method != http.MethodGet && method != http.MethodHead && method != http.MethodOptions
}
