// Package bootstrap constructs the genesis events that found a Federation,
// Cooperative, or Community, and the CAR archive format used to export and
// import a federation's DAG for offline transfer. Genesis nodes are built
// and signed directly from a founder key rather than through the normal
// submission pipeline, since no parent node yet exists to authorize them
// against.
package bootstrap

import (
	"encoding/json"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// toMap round-trips v through JSON to obtain the map[string]interface{}
// NewJSONPayload expects, preserving v's json struct tags.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "marshal genesis payload")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "unmarshal genesis payload")
	}
	return m, nil
}

// FederationGenesis is the JSON-payload shape of a FederationGenesis node.
type FederationGenesis struct {
	Type            string         `json:"type"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	CreatedAt       string         `json:"createdAt"`
	Founder         identity.Did   `json:"founder"`
	Members         []identity.Did `json:"members"`
	QuorumThreshold int            `json:"quorumThreshold"`
}

// CooperativeGenesis / CommunityGenesis share shape; Type holds the
// "type" discriminator actually written.
type ScopeGenesis struct {
	Type         string       `json:"type"`
	Name         string       `json:"name"`
	FederationID string       `json:"federationId"`
	Description  string       `json:"description"`
	CreatedAt    string       `json:"createdAt"`
	Founder      identity.Did `json:"founder"`
}

// NewFederationGenesis builds and signs the founding node of a federation.
// It has no parents: genesis nodes are exempt from the normal
// parent-presence requirement.
func NewFederationGenesis(kp *identity.KeyPair, name, description string, members []identity.Did, quorumThreshold int, createdAt time.Time) (*dagnode.SignedNode, error) {
	if quorumThreshold <= 0 || quorumThreshold > len(members) {
		return nil, utils.New(utils.KindStructural, "quorumThreshold must be in (0, len(members)]")
	}
	body := FederationGenesis{
		Type:            "FederationGenesis",
		Name:            name,
		Description:     description,
		CreatedAt:       createdAt.UTC().Format(time.RFC3339),
		Founder:         kp.Did,
		Members:         members,
		QuorumThreshold: quorumThreshold,
	}
	payload, err := jsonPayload(body)
	if err != nil {
		return nil, err
	}
	node := dagnode.Node{
		Payload: payload,
		Author:  string(kp.Did),
		Metadata: dagnode.Metadata{
			Timestamp: createdAt.Unix(),
			Scope:     dagnode.ScopeFederation,
		},
	}
	return dagnode.Sign(node, kp)
}

// NewCooperativeGenesis / NewCommunityGenesis build and sign the founding
// node of a cooperative or community. It too has no parents — the join
// protocol references these genesis Cids but does not make the joining
// scope's own genesis a DAG child of the federation.
func newScopeGenesis(kp *identity.KeyPair, kind string, scope dagnode.Scope, scopeID, federationID, name, description string, createdAt time.Time) (*dagnode.SignedNode, error) {
	body := ScopeGenesis{
		Type:         kind,
		Name:         name,
		FederationID: federationID,
		Description:  description,
		CreatedAt:    createdAt.UTC().Format(time.RFC3339),
		Founder:      kp.Did,
	}
	payload, err := jsonPayload(body)
	if err != nil {
		return nil, err
	}
	node := dagnode.Node{
		Payload: payload,
		Author:  string(kp.Did),
		Metadata: dagnode.Metadata{
			Timestamp:    createdAt.Unix(),
			Scope:        scope,
			ScopeID:      scopeID,
			FederationID: federationID,
		},
	}
	return dagnode.Sign(node, kp)
}

func NewCooperativeGenesis(kp *identity.KeyPair, scopeID, federationID, name, description string, createdAt time.Time) (*dagnode.SignedNode, error) {
	return newScopeGenesis(kp, "CooperativeGenesis", dagnode.ScopeCooperative, scopeID, federationID, name, description, createdAt)
}

func NewCommunityGenesis(kp *identity.KeyPair, scopeID, federationID, name, description string, createdAt time.Time) (*dagnode.SignedNode, error) {
	return newScopeGenesis(kp, "CommunityGenesis", dagnode.ScopeCommunity, scopeID, federationID, name, description, createdAt)
}

func jsonPayload(v interface{}) (dagnode.Payload, error) {
	m, err := toMap(v)
	if err != nil {
		return dagnode.Payload{}, err
	}
	return dagnode.NewJSONPayload(m)
}

// GenesisCID is a small convenience used by export/import to surface a
// signed genesis node's content identifier without forcing callers to
// import dagnode directly.
func GenesisCID(n *dagnode.SignedNode) (cid.Cid, error) {
	return n.CID()
}
