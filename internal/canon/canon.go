// Package canon fixes the single canonical encoding the whole core signs
// and hashes with: DAG-CBOR (RFC 8949 core deterministic encoding, which
// sorts map keys lexicographically by their encoded bytes) via
// github.com/fxamacker/cbor/v2, content-addressed with
// github.com/ipfs/go-cid + github.com/multiformats/go-multihash.
//
// Every signed structure in this module signs over canon.Encode
// of itself with its signature/proof field cleared, so signing bytes are
// always produced by exactly one deterministic path.
package canon

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/intercoop-network/dag-core/pkg/utils"
)

// DagCborCodec is the multicodec used for CIDs addressing DAG-CBOR blocks.
const DagCborCodec = 0x71

var encMode = mustCanonicalMode()

func mustCanonicalMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Encode produces the canonical DAG-CBOR byte representation of v. Two
// encoders of the same logical value MUST produce byte-identical output;
// cbor.CanonicalEncOptions (RFC 8949 core deterministic encoding) guarantees
// map keys are emitted in their encoded-byte sort order.
func Encode(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, utils.Wrap(utils.KindIntegrity, err, "canonical cbor encode")
	}
	return b, nil
}

// Decode parses canonical DAG-CBOR bytes into v.
func Decode(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return utils.Wrap(utils.KindStructural, err, "cbor decode")
	}
	return nil
}

// ComputeCID hashes the canonical encoding of data with sha2-256 and wraps
// it as a CIDv1 using the DAG-CBOR codec.
func ComputeCID(data []byte) (cid.Cid, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, utils.Wrap(utils.KindIntegrity, err, "multihash sum")
	}
	return cid.NewCidV1(DagCborCodec, sum), nil
}

// EncodeAndCID is a convenience wrapper: canonically encode v, then compute
// its content identifier.
func EncodeAndCID(v interface{}) (cid.Cid, []byte, error) {
	b, err := Encode(v)
	if err != nil {
		return cid.Undef, nil, err
	}
	c, err := ComputeCID(b)
	if err != nil {
		return cid.Undef, nil, err
	}
	return c, b, nil
}

// ParseCID parses a Cid from its string form, wrapped in the taxonomy's
// Structural kind on failure.
func ParseCID(s string) (cid.Cid, error) {
	c, err := cid.Parse(s)
	if err != nil {
		return cid.Undef, utils.Wrap(utils.KindStructural, err, "parse cid "+s)
	}
	return c, nil
}
