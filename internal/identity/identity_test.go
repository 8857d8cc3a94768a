package identity

import (
	"path/filepath"
	"testing"

	"github.com/radicle-link/linkd/internal/peerid"
	"github.com/radicle-link/linkd/internal/urn"
)

func mustKeyPair(t *testing.T, dir, name string) peerid.KeyPair {
	t.Helper()
	kp, err := peerid.LoadOrCreate(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("LoadOrCreate(%s): %v", name, err)
	}
	return kp
}

func signDoc(t *testing.T, doc Document, signers ...peerid.KeyPair) Revision {
	t.Helper()
	canonical, err := Canonical(doc)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	var sigs []Signature
	for _, kp := range signers {
		sig, err := kp.Sign(canonical)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		sigs = append(sigs, Signature{Signer: kp.ID, Sig: sig})
	}
	return Revision{Doc: doc, Signed: sigs}
}

type staticResolver map[string]Revision

func (r staticResolver) Resolve(u urn.URN) (Revision, error) {
	rev, ok := r[u.String()]
	if !ok {
		return Revision{}, ErrUnknownDelegate
	}
	return rev, nil
}

func TestDirectQuorumThreeOfFive(t *testing.T) {
	dir := t.TempDir()
	var ids []peerid.PeerId
	var kps []peerid.KeyPair
	for i := 0; i < 5; i++ {
		kp := mustKeyPair(t, dir, string(rune('a'+i)))
		ids = append(ids, kp.ID)
		kps = append(kps, kp)
	}

	doc := Document{SchemaVersion: SchemaVersion, Revision: 0, Delegations: NewDirect(ids)}

	// 3 of 5 signatures: quorum threshold is 5/2+1 = 3
	rev := signDoc(t, doc, kps[0], kps[1], kps[2])
	if err := Verify(rev, nil, nil, DefaultPolicy); err != nil {
		t.Errorf("3-of-5 should reach quorum: %v", err)
	}

	rev2 := signDoc(t, doc, kps[0], kps[1])
	if err := Verify(rev2, nil, nil, DefaultPolicy); err == nil {
		t.Error("2-of-5 should not reach quorum")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	dir := t.TempDir()
	kp := mustKeyPair(t, dir, "a")
	doc := Document{SchemaVersion: SchemaVersion, Delegations: NewDirect([]peerid.PeerId{kp.ID})}

	canonical, _ := Canonical(doc)
	sig, err := kp.Sign(canonical)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := Document{SchemaVersion: SchemaVersion, Revision: 99, Delegations: NewDirect([]peerid.PeerId{kp.ID})}
	rev := Revision{Doc: tampered, Signed: []Signature{{Signer: kp.ID, Sig: sig}}}

	if err := Verify(rev, nil, nil, DefaultPolicy); err == nil {
		t.Error("expected verification failure for tampered document")
	}
}

func TestVerifyEmptyDelegationSet(t *testing.T) {
	doc := Document{SchemaVersion: SchemaVersion, Delegations: NewDirect(nil)}
	rev := Revision{Doc: doc}
	if err := Verify(rev, nil, nil, DefaultPolicy); err == nil {
		t.Error("expected error for empty delegation set")
	}
}

func TestParentQuorumRequired(t *testing.T) {
	dir := t.TempDir()
	kpA := mustKeyPair(t, dir, "a")
	kpB := mustKeyPair(t, dir, "b")

	parent := Document{SchemaVersion: SchemaVersion, Revision: 0, Delegations: NewDirect([]peerid.PeerId{kpA.ID, kpB.ID})}
	child := Document{SchemaVersion: SchemaVersion, Revision: 1, ParentOid: "deadbeef", Delegations: NewDirect([]peerid.PeerId{kpA.ID})}

	// Signed only by kpA: passes the child's own 1-of-1 quorum (1/2+1=1)
	// but not the parent's, whose threshold for n=2 is 2/2+1=2.
	rev := signDoc(t, child, kpA)
	err := Verify(rev, &parent, nil, DefaultPolicy)
	if err == nil {
		t.Error("expected parent quorum failure: parent threshold for n=2 is 2 signatures")
	}

	revBoth := signDoc(t, child, kpA, kpB)
	if err := Verify(revBoth, &parent, nil, DefaultPolicy); err != nil {
		t.Errorf("2-of-2 should satisfy both child and parent quorum: %v", err)
	}
}

func TestCyclicIndirectDelegationTerminates(t *testing.T) {
	dir := t.TempDir()
	kpA := mustKeyPair(t, dir, "a")
	kpB := mustKeyPair(t, dir, "b")

	uA := urn.FromRootDocument([]byte("doc-a"))
	uB := urn.FromRootDocument([]byte("doc-b"))

	docA := Document{SchemaVersion: SchemaVersion, Delegations: NewIndirect([]DelegationRef{{Ref: &uB}})}
	docB := Document{SchemaVersion: SchemaVersion, Delegations: NewIndirect([]DelegationRef{{Ref: &uA}})}

	resolver := staticResolver{
		uA.String(): {Doc: docA},
		uB.String(): {Doc: docB},
	}

	top := Document{SchemaVersion: SchemaVersion, Delegations: NewIndirect([]DelegationRef{{Ref: &uA}})}

	// Should terminate (not hang) even though uA -> uB -> uA cycles.
	_, err := ResolveEligible(top, []peerid.PeerId{kpA.ID, kpB.ID}, resolver, DefaultPolicy)
	if err != nil {
		t.Fatalf("ResolveEligible should not error on cyclic delegation: %v", err)
	}
}

func TestUnsupportedSchemaHardFailByDefault(t *testing.T) {
	dir := t.TempDir()
	kp := mustKeyPair(t, dir, "a")
	uDelegate := urn.FromRootDocument([]byte("future-doc"))

	future := Document{SchemaVersion: SchemaVersion + 1, Delegations: NewDirect([]peerid.PeerId{kp.ID})}
	resolver := staticResolver{uDelegate.String(): {Doc: future}}

	top := Document{SchemaVersion: SchemaVersion, Delegations: NewIndirect([]DelegationRef{{Ref: &uDelegate}})}

	_, err := ResolveEligible(top, []peerid.PeerId{kp.ID}, resolver, DefaultPolicy)
	if err == nil {
		t.Error("expected hard failure for unsupported schema version")
	}

	lenient := Policy{UnknownSchema: UnknownSchemaTreatAsUnknownDelegate}
	_, err = ResolveEligible(top, []peerid.PeerId{kp.ID}, resolver, lenient)
	if err != nil {
		t.Errorf("lenient policy should not error: %v", err)
	}
}

func TestURNOfRequiresInitialRevision(t *testing.T) {
	doc := Document{Revision: 1, Delegations: NewDirect(nil)}
	if _, err := URNOf(doc); err == nil {
		t.Error("expected error for non-initial revision")
	}
}

func TestURNOfDeterministic(t *testing.T) {
	doc := Document{SchemaVersion: SchemaVersion, Delegations: NewDirect(nil)}
	u1, err := URNOf(doc)
	if err != nil {
		t.Fatalf("URNOf: %v", err)
	}
	u2, err := URNOf(doc)
	if err != nil {
		t.Fatalf("URNOf: %v", err)
	}
	if !u1.Equal(u2) {
		t.Errorf("URNOf not deterministic: %s != %s", u1, u2)
	}
}
