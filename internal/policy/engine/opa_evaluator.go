package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
)

const containmentQuery = "data.insiderwatch.containment"

// DefaultContainmentPolicy blocks and notifies on every logon of a flagged employee.
const DefaultContainmentPolicy = `package insiderwatch.containment

default block := false
default notify := false

flagged_logon if {
	input.employee.anomaly_flag
	input.event.activity == "logon"
}

block if flagged_logon

notify if flagged_logon
`

// OPAEvaluator evaluates the containment policy using OPA Rego.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator compiles policy. An empty policy selects DefaultContainmentPolicy.
func NewOPAEvaluator(policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultContainmentPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"containment.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile containment policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// NewOPAEvaluatorFromFile reads the policy at path. An empty path selects DefaultContainmentPolicy.
func NewOPAEvaluatorFromFile(path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator("")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read containment policy: %w", err)
	}
	return NewOPAEvaluator(string(b))
}

// HealthCheck evaluates the loaded policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.eval(ctx, buildInput(ContainmentInput{Activity: "logon", Timestamp: time.Unix(0, 0)}))
	if err != nil {
		return fmt.Errorf("eval containment policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateContainment evaluates the policy for in. When evaluation fails the default decision
// (block and notify exactly when a flagged employee logs on) is returned along with the error.
func (e *OPAEvaluator) EvaluateContainment(ctx context.Context, in ContainmentInput) (Decision, error) {
	fallback := defaultDecision(in)
	rs, err := e.eval(ctx, buildInput(in))
	if err != nil {
		logger.Get().Warn("policy: containment evaluation failed, using defaults",
			zap.String("employee_id", in.EmployeeID), zap.Error(err))
		return fallback, fmt.Errorf("evaluate containment policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fallback, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return fallback, nil
	}
	out := fallback
	if v, ok := doc["block"].(bool); ok {
		out.Block = v
	}
	if v, ok := doc["notify"].(bool); ok {
		out.Notify = v
	}
	return out, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, input map[string]interface{}) (rego.ResultSet, error) {
	q := rego.New(
		rego.Query(containmentQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	return q.Eval(ctx)
}

func buildInput(in ContainmentInput) map[string]interface{} {
	ts := ""
	if !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC().Format(time.RFC3339)
	}
	return map[string]interface{}{
		"organization_id": in.OrganizationID,
		"employee": map[string]interface{}{
			"id":           in.EmployeeID,
			"role":         in.Role,
			"it_admin":     in.ITAdmin,
			"anomaly_flag": in.AnomalyFlag,
		},
		"endpoint": map[string]interface{}{
			"id":  in.EndpointID,
			"own": in.OwnEndpoint,
		},
		"event": map[string]interface{}{
			"activity":  in.Activity,
			"timestamp": ts,
			"hour":      in.Timestamp.Hour(),
		},
	}
}

func defaultDecision(in ContainmentInput) Decision {
	flagged := in.AnomalyFlag && in.Activity == "logon"
	return Decision{Block: flagged, Notify: flagged}
}
