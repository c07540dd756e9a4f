package dagnode

import (
	"encoding/json"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Kind discriminates the exhaustive payload variants a DAG node may carry.
type Kind string

const (
	KindRaw                 Kind = "raw"
	KindJSON                Kind = "json"
	KindReference           Kind = "reference"
	KindTrustBundleRef      Kind = "trustbundle_ref"
	KindExecutionReceiptRef Kind = "execution_receipt_ref"
	// KindUnknown preserves a payload variant this version of the core does
	// not recognize, rather than rejecting it, per the forward-compatibility
	// design note. Authorization for Unknown is always default-deny.
	KindUnknown Kind = "unknown"
)

// Payload is the tagged union of node payload variants. Exactly one of the
// kind-specific fields is populated according to Kind. CBOR field tags are
// stable across versions; field presence (not Go struct shape) is the wire
// contract.
type Payload struct {
	Kind Kind `cbor:"kind"`

	Raw []byte `cbor:"raw,omitempty"`

	// JSON holds the canonical JSON bytes of a Json payload. It is
	// self-describing by a mandatory "type" discriminator field.
	JSON []byte `cbor:"json,omitempty"`

	ReferenceCID string `cbor:"reference_cid,omitempty"`

	TrustBundleCID string `cbor:"trustbundle_cid,omitempty"`

	ExecutionReceiptCID string `cbor:"execution_receipt_cid,omitempty"`

	// UnknownTypeTag and UnknownRaw carry a not-yet-understood variant
	// verbatim.
	UnknownTypeTag string `cbor:"unknown_type_tag,omitempty"`
	UnknownRaw     []byte `cbor:"unknown_raw,omitempty"`
}

// NewRawPayload wraps opaque bytes.
func NewRawPayload(b []byte) Payload {
	return Payload{Kind: KindRaw, Raw: b}
}

// NewJSONPayload validates that the supplied value marshals to an object
// carrying a "type" field, then stores its canonical JSON bytes.
func NewJSONPayload(v map[string]interface{}) (Payload, error) {
	if _, ok := v["type"]; !ok {
		return Payload{}, utils.New(utils.KindStructural, "json payload missing mandatory \"type\" field")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, utils.Wrap(utils.KindStructural, err, "marshal json payload")
	}
	return Payload{Kind: KindJSON, JSON: b}, nil
}

// NewReferencePayload points at another node's Cid.
func NewReferencePayload(c cid.Cid) Payload {
	return Payload{Kind: KindReference, ReferenceCID: c.String()}
}

// NewTrustBundleRefPayload points at a TrustBundle blob's Cid.
func NewTrustBundleRefPayload(c cid.Cid) Payload {
	return Payload{Kind: KindTrustBundleRef, TrustBundleCID: c.String()}
}

// NewExecutionReceiptRefPayload points at an ExecutionReceipt credential's
// Cid.
func NewExecutionReceiptRefPayload(c cid.Cid) Payload {
	return Payload{Kind: KindExecutionReceiptRef, ExecutionReceiptCID: c.String()}
}

// NewUnknownPayload preserves an unrecognized variant.
func NewUnknownPayload(typeTag string, raw []byte) Payload {
	return Payload{Kind: KindUnknown, UnknownTypeTag: typeTag, UnknownRaw: raw}
}

// JSONMap decodes a KindJSON payload's bytes into a generic map. Callers
// that only need the action_type/type discriminator should prefer
// ActionType.
func (p Payload) JSONMap() (map[string]interface{}, error) {
	if p.Kind != KindJSON {
		return nil, utils.New(utils.KindStructural, "payload is not json")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(p.JSON, &m); err != nil {
		return nil, utils.Wrap(utils.KindStructural, err, "unmarshal json payload")
	}
	return m, nil
}

// ActionType extracts the action discriminator used for scope-policy
// lookup: payload["action_type"] if present, else lowercase(payload["type"]).
// Only Json payloads are extractable; all other kinds return ok=false,
// meaning the node is exempt from action-level authorization.
func (p Payload) ActionType() (action string, ok bool) {
	if p.Kind != KindJSON {
		return "", false
	}
	m, err := p.JSONMap()
	if err != nil {
		return "", false
	}
	if at, exists := m["action_type"]; exists {
		if s, isStr := at.(string); isStr && s != "" {
			return s, true
		}
	}
	if t, exists := m["type"]; exists {
		if s, isStr := t.(string); isStr && s != "" {
			return strings.ToLower(s), true
		}
	}
	return "", false
}

// TypeTag returns the "type" discriminator of a Json payload, if present.
func (p Payload) TypeTag() (string, bool) {
	if p.Kind != KindJSON {
		return "", false
	}
	m, err := p.JSONMap()
	if err != nil {
		return "", false
	}
	t, ok := m["type"].(string)
	return t, ok
}
