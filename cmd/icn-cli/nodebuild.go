package main

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/pipeline"
)

// buildAndSubmit signs a Json-payload node over parents at the given scope
// and submits it through app.Orchestrator, the same construct-sign-submit
// sequence every command family repeats.
func buildAndSubmit(app *appContext, fields map[string]interface{}, parents []cid.Cid, scope dagnode.Scope, scopeID, federationID string, at time.Time) (cid.Cid, error) {
	payload, err := dagnode.NewJSONPayload(fields)
	if err != nil {
		return cid.Undef, err
	}
	node := dagnode.NewNode(payload, parents, app.Key.Did, dagnode.Metadata{
		Timestamp: at.Unix(), Scope: scope, ScopeID: scopeID, FederationID: federationID,
	})
	signed, err := dagnode.Sign(node, app.Key)
	if err != nil {
		return cid.Undef, err
	}
	return app.Orchestrator.Submit(context.Background(), signed, at, pipeline.Aux{})
}

func parseCIDArg(s string) (cid.Cid, error) {
	return canon.ParseCID(s)
}

// printCIDList renders a []cid.Cid as the string list printResult expects,
// propagating err unchanged so callers can `return printCIDList(cids, err)`.
func printCIDList(cids []cid.Cid, err error) error {
	if err != nil {
		return err
	}
	out := make([]string, 0, len(cids))
	for _, c := range cids {
		out = append(out, c.String())
	}
	return printResult(out)
}

// requestJoin builds and submits a {Cooperative,Community}JoinRequest node
// referencing both the requesting scope's own genesis and the target
// federation's genesis as parents, per the join protocol's first state
// transition (None -> Requested).
func requestJoin(app *appContext, scope dagnode.Scope, typeTag, federationID, scopeID, scopeGenesisCID, federationGenesisCID string) error {
	scopeCID, err := parseCIDArg(scopeGenesisCID)
	if err != nil {
		return err
	}
	fedCID, err := parseCIDArg(federationGenesisCID)
	if err != nil {
		return err
	}
	now := time.Now()
	c, err := buildAndSubmit(app, map[string]interface{}{
		"type":                   typeTag,
		"scope_type":             string(scope),
		"scope_id":               scopeID,
		"federation_id":          federationID,
		"scope_genesis_cid":      scopeGenesisCID,
		"federation_genesis_cid": federationGenesisCID,
		"requested_at":           now.Unix(),
		"requester":              string(app.Key.Did),
	}, []cid.Cid{fedCID, scopeCID}, scope, scopeID, federationID, now)
	if err != nil {
		return err
	}
	return printResult(map[string]string{"request_cid": c.String()})
}
