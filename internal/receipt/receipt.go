// Package receipt implements the Execution Receipt verifiable credential: a
// signed attestation that an off-DAG execution (WASM module invocation,
// mesh compute task) ran to a particular result, and the index the core
// maintains over module_cid / executor_did / federation_id. The
// credential's own signing and content addressing follow
// internal/trustbundle's Hash/Sign/Verify/CID pattern.
package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/dagnode"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// Status is the outcome of an executed module.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Subject is the credentialSubject of an ExecutionReceipt.
type Subject struct {
	ExecutorDid  identity.Did  `cbor:"executor_did" json:"executor_did"`
	Scope        dagnode.Scope `cbor:"scope" json:"scope"`
	Submitter    identity.Did  `cbor:"submitter" json:"submitter"`
	ModuleCID    string        `cbor:"module_cid" json:"module_cid"`
	ResultCID    string        `cbor:"result_cid" json:"result_cid"`
	EventID      string        `cbor:"event_id,omitempty" json:"event_id,omitempty"`
	FederationID string        `cbor:"federation_id" json:"federation_id"`
	Timestamp    time.Time     `cbor:"timestamp" json:"timestamp"`
	Status       Status        `cbor:"status" json:"status"`
}

// Receipt is the signed verifiable credential, signed by its executor.
type Receipt struct {
	ID      string  `cbor:"id" json:"id"`
	Subject Subject `cbor:"subject" json:"subject"`
	Proof   []byte  `cbor:"proof,omitempty" json:"proof,omitempty"`
}

func (r Receipt) signable() ([]byte, error) {
	cp := r
	cp.Proof = nil
	return canon.Encode(cp)
}

// Issue builds and signs a Receipt as executor kp.
func Issue(kp *identity.KeyPair, subject Subject) (Receipt, error) {
	subject.ExecutorDid = kp.Did
	r := Receipt{ID: "urn:uuid:" + uuid.New().String(), Subject: subject}
	raw, err := r.signable()
	if err != nil {
		return Receipt{}, err
	}
	r.Proof = kp.Sign(raw)
	return r, nil
}

// Verify checks r.Proof against the executor's resolved public key.
func (r Receipt) Verify(resolver identity.PublicKeyResolver) error {
	raw, err := r.signable()
	if err != nil {
		return err
	}
	pub, err := resolver.ResolvePublicKey(r.Subject.ExecutorDid)
	if err != nil {
		return utils.Wrap(utils.KindSignature, err, "resolve executor public key")
	}
	if !identity.Verify(pub, raw, r.Proof) {
		return utils.New(utils.KindSignature, "execution receipt signature invalid")
	}
	return nil
}

// CID computes the content identifier of the fully-signed receipt, the
// handle anchored by an ExecutionReceiptRef payload.
func (r Receipt) CID() (cid.Cid, []byte, error) {
	raw, err := canon.Encode(r)
	if err != nil {
		return cid.Undef, nil, err
	}
	c, err := canon.ComputeCID(raw)
	if err != nil {
		return cid.Undef, nil, err
	}
	return c, raw, nil
}
