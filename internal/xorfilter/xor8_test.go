package xorfilter

import (
	"fmt"
	"testing"
)

func TestContainsAllMembers(t *testing.T) {
	keys := make([]uint64, 1024)
	for i := range keys {
		keys[i] = Hash64([]byte(fmt.Sprintf("urn:link:test-%d", i)))
	}

	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i, k := range keys {
		if !f.Contains(k) {
			t.Fatalf("filter missing member %d (%d)", i, k)
		}
	}
}

func TestFalsePositiveRateIsLow(t *testing.T) {
	const n = 1024
	keys := make([]uint64, n)
	member := make(map[uint64]bool, n)
	for i := range keys {
		keys[i] = Hash64([]byte(fmt.Sprintf("urn:link:known-%d", i)))
		member[keys[i]] = true
	}

	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	const probes = 16384
	falsePositives := 0
	for i := 0; i < probes; i++ {
		k := Hash64([]byte(fmt.Sprintf("urn:link:probe-%d", i)))
		if member[k] {
			continue
		}
		if f.Contains(k) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(probes)
	if rate > 0.01 {
		t.Errorf("false positive rate %f exceeds tolerance", rate)
	}
}

func TestBuildEmptySet(t *testing.T) {
	f, err := Build(nil)
	if err != nil {
		t.Fatalf("Build(nil): %v", err)
	}
	if f.Contains(Hash64([]byte("anything"))) {
		t.Error("empty filter should not contain anything (with overwhelming probability)")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	keys := make([]uint64, 256)
	for i := range keys {
		keys[i] = Hash64([]byte(fmt.Sprintf("urn:link:wire-%d", i)))
	}

	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	restored := FromData(f.Marshal())
	for i, k := range keys {
		if !restored.Contains(k) {
			t.Fatalf("restored filter missing member %d (%d)", i, k)
		}
	}
}
