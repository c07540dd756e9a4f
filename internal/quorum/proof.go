package quorum

import (
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// SignaturePair is one (signer_did, signature_bytes) entry in a proof.
type SignaturePair struct {
	Signer    identity.Did `cbor:"signer"`
	Signature []byte       `cbor:"signature"`
}

// Proof is the ordered list of signer/signature pairs attesting to a
// message hash under a Config.
type Proof struct {
	Entries []SignaturePair `cbor:"entries"`
}

// Verify checks proof against msgHash under config: duplicate signers
// reject the whole proof (DuplicateSignature), each remaining signature is
// checked against the resolved public key, and the quorum predicate is
// applied to the set of signers whose signature verified AND who are
// listed in config.Participants. rejectOnBadSignature controls whether a
// single failing signature rejects the whole proof (the spec's documented
// default) or is merely dropped from the counted set.
func Verify(config Config, msgHash []byte, proof Proof, resolver identity.PublicKeyResolver, rejectOnBadSignature bool) error {
	if err := config.Validate(); err != nil {
		return err
	}

	seen := make(map[identity.Did]struct{}, len(proof.Entries))
	validSigners := make([]identity.Did, 0, len(proof.Entries))

	for _, entry := range proof.Entries {
		if _, dup := seen[entry.Signer]; dup {
			return utils.New(utils.KindSignature, "duplicate signature from "+string(entry.Signer))
		}
		seen[entry.Signer] = struct{}{}

		pub, err := resolver.ResolvePublicKey(entry.Signer)
		if err != nil {
			if rejectOnBadSignature {
				return utils.Wrap(utils.KindSignature, err, "resolve signer "+string(entry.Signer))
			}
			continue
		}
		if !identity.Verify(pub, msgHash, entry.Signature) {
			if rejectOnBadSignature {
				return utils.New(utils.KindSignature, "invalid signature from "+string(entry.Signer))
			}
			continue
		}
		validSigners = append(validSigners, entry.Signer)
	}

	if !config.Satisfied(validSigners) {
		return utils.New(utils.KindQuorum, "quorum predicate not satisfied")
	}
	return nil
}

// ValidSigners returns the subset of proof.Entries whose signature verifies
// against msgHash, without evaluating the quorum predicate. Useful for
// callers (e.g. the join protocol) that need the signer set itself.
func ValidSigners(msgHash []byte, proof Proof, resolver identity.PublicKeyResolver) ([]identity.Did, error) {
	seen := make(map[identity.Did]struct{}, len(proof.Entries))
	out := make([]identity.Did, 0, len(proof.Entries))
	for _, entry := range proof.Entries {
		if _, dup := seen[entry.Signer]; dup {
			return nil, utils.New(utils.KindSignature, "duplicate signature from "+string(entry.Signer))
		}
		seen[entry.Signer] = struct{}{}
		pub, err := resolver.ResolvePublicKey(entry.Signer)
		if err != nil {
			continue
		}
		if identity.Verify(pub, msgHash, entry.Signature) {
			out = append(out, entry.Signer)
		}
	}
	return out, nil
}
