// Package gateway exposes the five read-only observability commands
// (dag-view, inspect-policy, validate-quorum, activity-log,
// federation-overview) as an HTTP surface for operators (the CLI's own
// observability subcommands read the same components in-process rather
// than going through this package): a Controller
// wrapping injected services, a routes.Register(*mux.Router, *Controller)
// function, and a logrus request-timing middleware.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/policy"
	"github.com/intercoop-network/dag-core/internal/quorum"
)

// Controller bundles the read models the observability endpoints query.
// Any field may be nil; handlers report a 503 for an unwired dependency
// rather than panicking.
type Controller struct {
	Store      dagstore.Store
	Policies   *policy.Store
	Membership *membership.Index
}

func NewController(store dagstore.Store, policies *policy.Store, idx *membership.Index) *Controller {
	return &Controller{Store: store, Policies: policies, Membership: idx}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// nodeView is the JSON rendering of a SignedNode returned by DagView and
// ActivityLog.
type nodeView struct {
	CID          string `json:"cid"`
	Author       string `json:"author"`
	Parents      []string `json:"parents"`
	Scope        string `json:"scope"`
	ScopeID      string `json:"scope_id,omitempty"`
	FederationID string `json:"federation_id,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	PayloadKind  string `json:"payload_kind"`
	ActionType   string `json:"action_type,omitempty"`
}

func toNodeView(n *dagnode.SignedNode) (nodeView, error) {
	c, err := n.CID()
	if err != nil {
		return nodeView{}, err
	}
	v := nodeView{
		CID:          c.String(),
		Author:       n.Inner.Author,
		Parents:      n.Inner.Parents,
		Scope:        string(n.Inner.Metadata.Scope),
		ScopeID:      n.Inner.Metadata.ScopeID,
		FederationID: n.Inner.Metadata.FederationID,
		Timestamp:    n.Inner.Metadata.Timestamp,
		PayloadKind:  string(n.Inner.Payload.Kind),
	}
	if action, ok := n.Inner.Payload.ActionType(); ok {
		v.ActionType = action
	}
	return v, nil
}

// DagView handles GET /api/dag/view?cid=<cid>. With no cid query
// parameter it returns the current tip set; with one it returns the node
// itself.
func (c *Controller) DagView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnwired("dag store"))
		return
	}
	cidStr := r.URL.Query().Get("cid")
	if cidStr == "" {
		tips, err := c.Store.GetTips(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]string, len(tips))
		for i, t := range tips {
			out[i] = t.String()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tips": out})
		return
	}
	parsed, err := canon.ParseCID(cidStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	node, err := c.Store.GetNode(ctx, parsed)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	view, err := toNodeView(node)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// InspectPolicy handles GET
// /api/policy/inspect?scope_type=&scope_id=&federation_id=.
func (c *Controller) InspectPolicy(w http.ResponseWriter, r *http.Request) {
	if c.Policies == nil {
		writeError(w, http.StatusServiceUnavailable, errUnwired("policy store"))
		return
	}
	q := r.URL.Query()
	scopeType := dagnode.Scope(q.Get("scope_type"))
	scopeID := q.Get("scope_id")
	federationID := q.Get("federation_id")
	pol, err := c.Policies.PolicyFor(scopeType, scopeID, federationID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

// validateQuorumRequest is the body ValidateQuorum accepts: a quorum
// configuration, the message hash the proof was computed over, and the
// proof itself.
type validateQuorumRequest struct {
	Config  quorum.Config `json:"config"`
	MsgHash []byte        `json:"msg_hash"`
	Proof   quorum.Proof  `json:"proof"`
}

// ValidateQuorum handles POST /api/quorum/validate, reporting whether a
// submitted signature set satisfies a given quorum configuration.
func (c *Controller) ValidateQuorum(w http.ResponseWriter, r *http.Request) {
	var req validateQuorumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := quorum.Verify(req.Config, req.MsgHash, req.Proof, identity.SelfResolver{}, true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"satisfied": err == nil,
		"error":     errString(err),
	})
}

// ActivityLog handles GET
// /api/activity-log?federation_id=&scope_type=&scope_id=, returning the
// federation's (or scope's) nodes in topological order.
func (c *Controller) ActivityLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnwired("dag store"))
		return
	}
	q := r.URL.Query()
	scopeType := dagnode.Scope(q.Get("scope_type"))
	scopeID := q.Get("scope_id")

	var nodes []*dagnode.SignedNode
	var err error
	if scopeID != "" {
		nodes, err = c.Store.GetNodesByScope(ctx, scopeType, scopeID)
	} else {
		nodes, err = c.Store.GetOrderedNodes(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	federationID := q.Get("federation_id")
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		if federationID != "" && n.Inner.Metadata.FederationID != federationID {
			continue
		}
		v, err := toNodeView(n)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// FederationOverview handles GET /api/federation/overview?federation_id=,
// a summary of tip count and node count; membership is not included.
func (c *Controller) FederationOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c.Store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnwired("dag store"))
		return
	}
	federationID := r.URL.Query().Get("federation_id")
	nodes, err := c.Store.GetNodesByScope(ctx, dagnode.ScopeFederation, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tips, err := c.Store.GetTips(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	overview := map[string]interface{}{
		"federation_id": federationID,
		"tip_count":     len(tips),
		"node_count":    countByFederation(nodes, federationID),
	}
	writeJSON(w, http.StatusOK, overview)
}

func countByFederation(nodes []*dagnode.SignedNode, federationID string) int {
	if federationID == "" {
		return len(nodes)
	}
	count := 0
	for _, n := range nodes {
		if n.Inner.Metadata.FederationID == federationID {
			count++
		}
	}
	return count
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errUnwired(dep string) error {
	return &unwiredError{dep: dep}
}

type unwiredError struct{ dep string }

func (e *unwiredError) Error() string { return e.dep + " not configured on this gateway" }
