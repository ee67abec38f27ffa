package domain

import (
	"testing"
	"time"
)

func TestRestrictionLevelOrdering(t *testing.T) {
	ordered := []RestrictionLevel{RestrictionNone, RestrictionBasic, RestrictionStrict, RestrictionEncrypted}
	for i, lo := range ordered {
		for j, hi := range ordered {
			if got := hi.AtLeast(lo); got != (j >= i) {
				t.Fatalf("%s.AtLeast(%s) = %v", hi, lo, got)
			}
		}
	}
	if RestrictionLevel("PARANOID").Valid() {
		t.Fatalf("unknown level reported valid")
	}
	if !RestrictionStrict.Valid() {
		t.Fatalf("STRICT reported invalid")
	}
}

func TestLicenseExpired(t *testing.T) {
	now := time.Now().UTC()

	lic := License{}
	if lic.Expired(now) {
		t.Fatalf("license without expiry reported expired")
	}

	past := now.Add(-time.Minute)
	lic.ExpiresAt = &past
	if !lic.Expired(now) {
		t.Fatalf("past expiry not reported")
	}

	future := now.Add(time.Minute)
	lic.ExpiresAt = &future
	if lic.Expired(now) {
		t.Fatalf("future expiry reported expired")
	}
}
