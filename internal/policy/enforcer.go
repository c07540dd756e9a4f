package policy

import (
	"strings"
	"time"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/revocation"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// ResolveScopeType infers a scope type from a scope_id's conventional
// prefix (fed:, coop:, com:). ok is false for an unrecognized prefix.
func ResolveScopeType(scopeID string) (dagnode.Scope, bool) {
	switch {
	case strings.HasPrefix(scopeID, "fed:"):
		return dagnode.ScopeFederation, true
	case strings.HasPrefix(scopeID, "coop:"):
		return dagnode.ScopeCooperative, true
	case strings.HasPrefix(scopeID, "com:"):
		return dagnode.ScopeCommunity, true
	default:
		return "", false
	}
}

// Enforcer ties together the Scope Policy table, the Membership Index, and
// the Revocation Registry into a single authorization decision: action
// extraction, exemptions, scope resolution, policy lookup, and a revocation
// check ahead of every policy check.
type Enforcer struct {
	Policies    *Store
	Membership  *membership.Index
	Revocations *revocation.Registry
}

// NewEnforcer wires an Enforcer. revocations may be nil, in which case no
// revocation is ever in effect (useful for tests that do not exercise
// revocation).
func NewEnforcer(policies *Store, idx *membership.Index, revocations *revocation.Registry) *Enforcer {
	return &Enforcer{Policies: policies, Membership: idx, Revocations: revocations}
}

// Authorize decides whether node's author may perform the action node
// encodes, under the scope policy currently in force. at is the node's
// effective time against which revocation prospectivity is evaluated.
func (e *Enforcer) Authorize(node dagnode.Node, at time.Time) error {
	if node.Payload.Kind == dagnode.KindUnknown {
		return utils.New(utils.KindAuthorization, "unknown payload variant is denied by default")
	}
	if IsExempt(node, e.Policies) {
		return nil
	}
	actionType, ok := node.Payload.ActionType()
	if !ok {
		// Other non-Json payloads and Json payloads without an extractable
		// action are exempt from action-level authorization.
		return nil
	}

	author := identity.Did(node.Author)
	if e.Revocations != nil && e.Revocations.IsDidRevoked(author, at) {
		return utils.New(utils.KindAuthorization, "author did is revoked as of "+at.Format(time.RFC3339))
	}

	scopeID := node.Metadata.ScopeID
	inferred, inferredOK := ResolveScopeType(scopeID)
	scopeType := node.Metadata.Scope
	if inferredOK && inferred != scopeType {
		return utils.New(utils.KindStructural, "scope_id prefix disagrees with metadata.scope for "+scopeID)
	}

	pol, err := e.Policies.PolicyFor(scopeType, scopeID, node.Metadata.FederationID)
	if err != nil {
		return err
	}
	return pol.Check(actionType, author, node.Metadata.FederationID, e.Membership)
}
