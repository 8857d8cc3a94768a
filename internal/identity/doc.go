package identity

import (
	"encoding/json"
	"fmt"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

// SchemaVersion is the schema version this binary writes and, by
// default, requires of documents it reads.
const SchemaVersion = 1

// UnknownSchemaPolicy controls how a delegate's resolved document is
// treated when its declared schema version is newer than this binary
// understands.
type UnknownSchemaPolicy int

const (
	// UnknownSchemaHardFail rejects verification outright. Default.
	UnknownSchemaHardFail UnknownSchemaPolicy = iota
	// UnknownSchemaTreatAsUnknownDelegate treats the delegate as if it
	// were simply unresolvable, rather than failing the whole verify.
	UnknownSchemaTreatAsUnknownDelegate
)

// Policy controls optional, non-default verification behavior.
type Policy struct {
	UnknownSchema UnknownSchemaPolicy
}

// DefaultPolicy is the hard-fail-on-unknown-schema policy.
var DefaultPolicy = Policy{UnknownSchema: UnknownSchemaHardFail}

// Payload is the free-form, application-defined content of a document
// (project/user metadata); carried opaquely by the identity engine.
type Payload map[string]any

// Document is one revision of an identity: a payload plus the
// delegation set authorized to sign the next revision.
type Document struct {
	SchemaVersion int
	Revision      uint64
	ParentOid     string // empty for the initial revision
	Payload       Payload
	Delegations   Delegations
}

// Signature pairs a signer with their signature over a document's
// canonical bytes.
type Signature struct {
	Signer peerid.PeerId
	Sig    []byte
}

// Revision is a Document plus the signatures collected over it and the
// Git object id it is stored at.
type Revision struct {
	Oid       string
	Doc       Document
	Signed    []Signature
}

// canonicalForm is the wire shape hashed/signed for a document, kept
// separate from Document so Delegations (an interface) can be
// flattened into a plain value before canonical encoding.
type canonicalForm struct {
	SchemaVersion int            `json:"schema_version"`
	Revision      uint64         `json:"revision"`
	ParentOid     string         `json:"parent_oid,omitempty"`
	Payload       map[string]any `json:"payload"`
	Delegations   []any          `json:"delegations"`
}

// Canonical encodes a Document's canonical JSON bytes: the exact bytes
// signers sign over and verifiers re-derive to check a signature.
func Canonical(doc Document) ([]byte, error) {
	cf := canonicalForm{
		SchemaVersion: doc.SchemaVersion,
		Revision:      doc.Revision,
		ParentOid:     doc.ParentOid,
		Payload:       map[string]any(doc.Payload),
	}

	switch d := doc.Delegations.(type) {
	case *Direct:
		for _, m := range d.Members() {
			cf.Delegations = append(cf.Delegations, m.String())
		}
	case *Indirect:
		for _, r := range d.Refs() {
			switch {
			case r.Key != nil:
				cf.Delegations = append(cf.Delegations, r.Key.String())
			case r.Ref != nil:
				cf.Delegations = append(cf.Delegations, r.Ref.String())
			}
		}
	default:
		return nil, fmt.Errorf("identity: unsupported delegation type %T", doc.Delegations)
	}

	out, err := codec.CanonicalJSON(map[string]any{
		"schema_version": cf.SchemaVersion,
		"revision":       int(cf.Revision),
		"parent_oid":     cf.ParentOid,
		"payload":        cf.Payload,
		"delegations":    cf.Delegations,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: canonical encode: %w", err)
	}
	return out, nil
}

// ParseDocument decodes the canonical JSON bytes produced by Canonical
// back into a Document. It is the read-side counterpart used when
// loading a document off disk (a git blob, typically) rather than
// building one in memory.
func ParseDocument(data []byte) (Document, error) {
	var raw struct {
		SchemaVersion int            `json:"schema_version"`
		Revision      uint64         `json:"revision"`
		ParentOid     string         `json:"parent_oid"`
		Payload       map[string]any `json:"payload"`
		Delegations   []string       `json:"delegations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("identity: parse document: %w", err)
	}

	delegations, err := parseDelegations(raw.Delegations)
	if err != nil {
		return Document{}, err
	}

	return Document{
		SchemaVersion: raw.SchemaVersion,
		Revision:      raw.Revision,
		ParentOid:     raw.ParentOid,
		Payload:       Payload(raw.Payload),
		Delegations:   delegations,
	}, nil
}

// parseDelegations reconstructs a Delegations value from its
// flattened string form: a Direct set is encoded as bare peer id
// strings; an Indirect set mixes peer id strings (direct members) and
// URN strings (document references). An entry that parses as neither
// is an error. A set is reconstructed as Indirect as soon as any entry
// is a URN, and as Direct otherwise (including the empty set).
func parseDelegations(entries []string) (Delegations, error) {
	var directIDs []peerid.PeerId
	var refs []DelegationRef
	indirect := false

	for _, entry := range entries {
		if id, err := peerid.Parse(entry); err == nil {
			directIDs = append(directIDs, id)
			refs = append(refs, DelegationRef{Key: &id})
			continue
		}
		u, err := urn.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("identity: delegation entry %q is neither a peer id nor a urn: %w", entry, err)
		}
		indirect = true
		refs = append(refs, DelegationRef{Ref: &u})
	}

	if indirect {
		return NewIndirect(refs), nil
	}
	return NewDirect(directIDs), nil
}

// URNOf computes the content-addressed URN of the identity rooted at
// initial, the revision-0 document with no parent.
func URNOf(initial Document) (urn.URN, error) {
	if initial.Revision != 0 || initial.ParentOid != "" {
		return urn.URN{}, fmt.Errorf("identity: URNOf requires the initial (revision 0, no parent) document")
	}
	bytes, err := Canonical(initial)
	if err != nil {
		return urn.URN{}, err
	}
	return urn.FromRootDocument(bytes), nil
}
