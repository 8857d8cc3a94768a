package identity

import "errors"

var (
	// ErrNoQuorum is returned when a revision's signatures do not meet
	// the delegation set's quorum threshold.
	ErrNoQuorum = errors.New("identity: signatures do not meet quorum")

	// ErrParentQuorum is returned when an update's signatures do not
	// meet the quorum of the *parent* revision's delegation set, which
	// is required in addition to the new revision's own quorum.
	ErrParentQuorum = errors.New("identity: signatures do not meet parent quorum")

	// ErrInvalidSignature is returned when a claimed signer's signature
	// does not verify against the canonical document bytes.
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrUnknownDelegate is returned when an Indirect delegation
	// reference cannot be resolved to a document at all.
	ErrUnknownDelegate = errors.New("identity: unknown delegate")

	// ErrUnsupportedSchema is returned when a delegate's resolved
	// document declares a schema version newer than this binary
	// supports, and the active Policy treats that as fatal.
	ErrUnsupportedSchema = errors.New("identity: unsupported schema version")

	// ErrNotEligible is returned from Merge when the caller's key is not
	// an eligible delegate of the identity being merged.
	ErrNotEligible = errors.New("identity: signer not an eligible delegate")

	// ErrEmptyDelegationSet is returned when a document declares zero
	// delegates, which can never reach quorum.
	ErrEmptyDelegationSet = errors.New("identity: delegation set is empty")

	// ErrNoSignatures is returned when a revision in a chain carries no
	// signatures at all, which can never satisfy a quorum.
	ErrNoSignatures = errors.New("identity: revision has no signatures")

	// ErrParentMismatch is returned when a revision's declared parent_oid
	// does not match the oid of its actual git parent commit.
	ErrParentMismatch = errors.New("identity: declared parent_oid does not match git parent")

	// ErrDanglingParent is returned when a revision declares a parent_oid
	// but the underlying git commit has no parent to walk to.
	ErrDanglingParent = errors.New("identity: declared parent has no git history")

	// ErrMissingParent is returned when a revision's declared parent
	// cannot be loaded from storage.
	ErrMissingParent = errors.New("identity: declared parent could not be loaded")

	// ErrRootMismatch is returned when the root reached by walking a
	// chain back to its initial revision does not match the claimed URN.
	ErrRootMismatch = errors.New("identity: walked-back root does not match claimed identity")

	// ErrEmptyHistory is returned when a chain has no revisions at all.
	ErrEmptyHistory = errors.New("identity: identity has no history")

	// ErrEligibility names a failure to resolve a revision's eligible
	// delegates. No function in this package returns it: VerifyChain
	// reports such failures under ErrHistory with the resolver's own
	// error (ErrUnknownDelegate, ErrUnsupportedSchema) as the cause.
	ErrEligibility = errors.New("identity: failed to resolve eligible delegates")

	// ErrHistory wraps any failure encountered while walking an
	// identity's revision history; always paired with a more specific
	// cause via errors.Is.
	ErrHistory = errors.New("identity: invalid revision history")
)
