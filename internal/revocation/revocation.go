// Package revocation implements the RevocationNoticeCredential and the
// RevocationRecord that carries it into the DAG: a credential-form notice
// that revokes either a Did or a specific credential Cid, prospective from
// its effective date. The W3C verifiable-credential shape
// (context/id/type/issuer/credentialSubject/proof) is adapted to the
// module's Ed25519-only signing convention (internal/identity) and
// DAG-CBOR canonical hashing (internal/canon).
package revocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/intercoop-network/dag-core/internal/canon"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// defaultContext mirrors the JSON-LD context a revocation credential
// carries; kept even though this module does not interpret JSON-LD, since
// the wire shape is expected to round-trip it.
var defaultContext = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://w3id.org/security/suites/ed25519-2020/v1",
	"https://intercooperative.org/credentials/revocation/v1",
}

// Subject is the credentialSubject of a revocation notice: exactly one of
// RevokedDid or RevokedCredentialCID is set.
type Subject struct {
	FederationID         string       `cbor:"federation_id" json:"federationId"`
	RevokedDid           identity.Did `cbor:"revoked_did,omitempty" json:"revokedDid,omitempty"`
	RevokedCredentialCID string       `cbor:"revoked_credential_cid,omitempty" json:"revokedCredentialCid,omitempty"`
	Reason               string       `cbor:"reason" json:"reason"`
	// EffectiveDate gates prospectivity: authorization checks at time t only
	// consult this revocation if EffectiveDate <= t.
	EffectiveDate time.Time `cbor:"effective_date" json:"effectiveDate"`
}

// NoticeCredential is the signed verifiable credential notice.
type NoticeCredential struct {
	Context        []string     `cbor:"context" json:"@context"`
	ID             string       `cbor:"id" json:"id"`
	CredentialType []string     `cbor:"credential_type" json:"type"`
	Issuer         identity.Did `cbor:"issuer" json:"issuer"`
	IssuanceDate   time.Time    `cbor:"issuance_date" json:"issuanceDate"`
	Subject        Subject      `cbor:"credential_subject" json:"credentialSubject"`
	Proof          []byte       `cbor:"proof,omitempty" json:"proof,omitempty"`
}

// NewDidRevocation builds an unsigned notice revoking an entire Did.
func NewDidRevocation(federationID string, revokedDid identity.Did, reason string, issuer identity.Did, effectiveDate, issuedAt time.Time) NoticeCredential {
	return NoticeCredential{
		Context:        append([]string{}, defaultContext...),
		ID:             "urn:uuid:" + uuid.New().String(),
		CredentialType: []string{"VerifiableCredential", "RevocationNotice"},
		Issuer:         issuer,
		IssuanceDate:   issuedAt,
		Subject: Subject{
			FederationID:  federationID,
			RevokedDid:    revokedDid,
			Reason:        reason,
			EffectiveDate: effectiveDate,
		},
	}
}

// NewCredentialRevocation builds an unsigned notice revoking a specific
// credential Cid.
func NewCredentialRevocation(federationID string, revokedCredential cid.Cid, reason string, issuer identity.Did, effectiveDate, issuedAt time.Time) NoticeCredential {
	return NoticeCredential{
		Context:        append([]string{}, defaultContext...),
		ID:             "urn:uuid:" + uuid.New().String(),
		CredentialType: []string{"VerifiableCredential", "RevocationNotice"},
		Issuer:         issuer,
		IssuanceDate:   issuedAt,
		Subject: Subject{
			FederationID:         federationID,
			RevokedCredentialCID: revokedCredential.String(),
			Reason:               reason,
			EffectiveDate:        effectiveDate,
		},
	}
}

// signable returns the bytes a signer signs: the canonical encoding of the
// credential with Proof cleared.
func (n NoticeCredential) signable() ([]byte, error) {
	cp := n
	cp.Proof = nil
	return canon.Encode(cp)
}

// Sign signs n with kp, returning a copy carrying the proof.
func (n NoticeCredential) Sign(kp *identity.KeyPair) (NoticeCredential, error) {
	raw, err := n.signable()
	if err != nil {
		return NoticeCredential{}, err
	}
	out := n
	out.Issuer = kp.Did
	out.Proof = kp.Sign(raw)
	return out, nil
}

// Verify checks n.Proof against the issuer's resolved public key.
func (n NoticeCredential) Verify(resolver identity.PublicKeyResolver) error {
	raw, err := n.signable()
	if err != nil {
		return err
	}
	pub, err := resolver.ResolvePublicKey(n.Issuer)
	if err != nil {
		return utils.Wrap(utils.KindSignature, err, "resolve revocation issuer")
	}
	if !identity.Verify(pub, raw, n.Proof) {
		return utils.New(utils.KindSignature, "revocation notice signature invalid")
	}
	return nil
}

// Record is the DAG-payload-shaped RevocationRecord wrapper: a typed JSON
// discriminator plus the embedded notice, scoped to a federation.
type Record struct {
	Type         string           `json:"type"`
	FederationID string           `json:"federation_id"`
	Notice       NoticeCredential `json:"notice"`
}

// NewRecord wraps notice for anchoring into the DAG as a Json payload.
func NewRecord(federationID string, notice NoticeCredential) Record {
	return Record{Type: "RevocationRecord", FederationID: federationID, Notice: notice}
}
