package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Collaborator roles the negotiation engine dispatches to.
const (
	RoleResearch = "research"
	RolePrice    = "price"
	RoleOptimize = "optimize"
	RoleFinalize = "finalize"
)

// RoleCard represents registry metadata for one collaborator role.
type RoleCard struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	Role         string                 `json:"role"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema"`
	SideEffects  []string               `json:"side_effects"`
	Checksum     string                 `json:"checksum"`
	Signature    string                 `json:"signature"`
}

// DefaultRoleCards returns built-in RoleCards with minimal schemas.
func DefaultRoleCards() []RoleCard {
	empty := func() map[string]interface{} {
		return map[string]interface{}{
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"type":    "object",
		}
	}
	return []RoleCard{
		{Name: "research", Version: "v1", Description: "Discovers candidate offers per query", Role: RoleResearch, InputSchema: empty(), OutputSchema: empty(), SideEffects: []string{"network"}},
		{Name: "price", Version: "v1", Description: "Negotiates quotes with the pricing collaborator", Role: RolePrice, InputSchema: empty(), OutputSchema: empty(), SideEffects: []string{"network"}},
		{Name: "optimize", Version: "v1", Description: "Proposes budget-feasible selections", Role: RoleOptimize, InputSchema: empty(), OutputSchema: empty()},
		{Name: "finalize", Version: "v1", Description: "Packages converged plans for approval", Role: RoleFinalize, InputSchema: empty(), OutputSchema: empty()},
	}
}

// RequiredRoles is the set a negotiation orchestrator refuses to start without.
var RequiredRoles = []string{RoleResearch, RolePrice, RoleOptimize, RoleFinalize}

// Registry holds validated RoleCards keyed by role.
type Registry struct {
	roles map[string]RoleCard
}

// ErrRoleMissing indicates a required role is not registered.
var ErrRoleMissing = fmt.Errorf("required role missing")

// NewRegistry validates RoleCards and ensures the required roles exist.
func NewRegistry(cards []RoleCard, signingSecret string, required []string) (*Registry, error) {
	reg := &Registry{roles: make(map[string]RoleCard)}
	for _, rc := range cards {
		if err := validateSignature(rc, signingSecret); err != nil {
			return nil, fmt.Errorf("role card %s@%s signature invalid: %w", rc.Name, rc.Version, err)
		}
		existing, ok := reg.roles[rc.Role]
		if !ok || versionGreater(rc.Version, existing.Version) {
			reg.roles[rc.Role] = rc
		}
	}
	if len(required) == 0 {
		required = RequiredRoles
	}
	for _, r := range required {
		if _, ok := reg.roles[r]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrRoleMissing, r)
		}
	}
	return reg, nil
}

// Role returns the RoleCard for a collaborator role.
func (r *Registry) Role(role string) (RoleCard, bool) {
	if r == nil {
		return RoleCard{}, false
	}
	rc, ok := r.roles[role]
	return rc, ok
}

// ComputeChecksum returns a deterministic hash of the RoleCard payload (excluding signature field).
func ComputeChecksum(rc RoleCard) (string, error) {
	payload := map[string]interface{}{
		"name":          rc.Name,
		"version":       rc.Version,
		"description":   rc.Description,
		"role":          rc.Role,
		"input_schema":  rc.InputSchema,
		"output_schema": rc.OutputSchema,
		"side_effects":  rc.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignRoleCard computes an HMAC signature using the signing secret.
func SignRoleCard(rc RoleCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(rc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func validateSignature(rc RoleCard, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignRoleCard(rc, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(rc.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	// naive semver compare
	return compareParts(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func compareParts(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
