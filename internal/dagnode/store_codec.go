package dagnode

import (
	"github.com/intercoop-network/dag-core/internal/canon"
)

// MarshalForStorage serializes the full signed envelope (inner node +
// signature) for persistence in the DAG Store's blob backend. This is
// distinct from the bytes signed over (canon.Encode(sn.Inner)): the stored
// blob additionally carries the signature.
func (sn *SignedNode) MarshalForStorage() ([]byte, error) {
	return canon.Encode(struct {
		Inner     Node   `cbor:"inner"`
		Signature []byte `cbor:"signature"`
	}{Inner: sn.Inner, Signature: sn.Signature})
}

// UnmarshalSignedNode parses a blob produced by MarshalForStorage.
func UnmarshalSignedNode(data []byte) (*SignedNode, error) {
	var wire struct {
		Inner     Node   `cbor:"inner"`
		Signature []byte `cbor:"signature"`
	}
	if err := canon.Decode(data, &wire); err != nil {
		return nil, err
	}
	return &SignedNode{Inner: wire.Inner, Signature: wire.Signature}, nil
}
