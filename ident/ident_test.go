package ident_test

import (
	"testing"

	"github.com/go-test/deep"

	"pds4delta/ident"
)

func TestLidRoundTrip(t *testing.T) {
	cases := []string{
		"urn:nasa:pds:bundle",
		"urn:nasa:pds:bundle:collection",
		"urn:nasa:pds:bundle:collection:product",
	}

	for _, s := range cases {
		s := s
		t.Run(s, func(t *testing.T) {
			lid, err := ident.ParseLid(s)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if lid.String() != s {
				t.Errorf("round trip failed: got %q, want %q", lid.String(), s)
			}
		})
	}
}

func TestLidParseMalformed(t *testing.T) {
	_, err := ident.ParseLid("too:few:tokens")
	if err == nil {
		t.Fatal("expected error for too few tokens")
	}
}

func TestLidLevel(t *testing.T) {
	cases := []struct {
		name string
		lid  string
		want ident.Level
	}{
		{"bundle", "urn:p:b:b1", ident.BundleLevel},
		{"collection", "urn:p:b:b1:c1", ident.CollectionLevel},
		{"product", "urn:p:b:b1:c1:p1", ident.ProductLevel},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			lid, err := ident.ParseLid(c.lid)
			if err != nil {
				t.Fatal(err)
			}
			if lid.Level() != c.want {
				t.Errorf("got %v want %v", lid.Level(), c.want)
			}
		})
	}
}

func TestVidRoundTrip(t *testing.T) {
	cases := []string{"1.0", "1.1", "2.0", "10.23"}
	for _, s := range cases {
		s := s
		t.Run(s, func(t *testing.T) {
			v, err := ident.ParseVid(s)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if v.String() != s {
				t.Errorf("round trip failed: got %q want %q", v.String(), s)
			}
		})
	}
}

func TestVidMalformed(t *testing.T) {
	cases := []string{"1", "1.a", "a.1", "1.1.1", ""}
	for _, s := range cases {
		s := s
		t.Run(s, func(t *testing.T) {
			v, err := ident.ParseVid(s)
			if err == nil {
				t.Fatalf("expected error for %q", s)
			}
			if v.Present() {
				t.Errorf("malformed vid should not be Present()")
			}
		})
	}
}

func TestVidTotalOrder(t *testing.T) {
	a := ident.NewVid(1, 0)
	b := ident.NewVid(1, 1)
	c := ident.NewVid(2, 0)

	if !a.Less(b) || !b.Less(c) || !a.Less(c) {
		t.Fatal("expected a < b < c")
	}
	if b.Less(a) || c.Less(b) {
		t.Fatal("unexpected reverse ordering")
	}
}

func TestVidSuperseding(t *testing.T) {
	if ident.NewVid(1, 0).Superseding() {
		t.Error("1.0 should not be superseding")
	}
	if !ident.NewVid(1, 1).Superseding() {
		t.Error("1.1 should be superseding")
	}
	if !ident.NewVid(2, 0).Superseding() {
		t.Error("2.0 should be superseding")
	}
}

func TestBumpClosure(t *testing.T) {
	prev := ident.NewVid(1, 0)
	minor := prev.IncMinor()
	major := prev.IncMajor()

	if diff := deep.Equal(minor, ident.NewVid(1, 1)); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(major, ident.NewVid(2, 0)); diff != nil {
		t.Error(diff)
	}
	if minor.Equal(major) {
		t.Error("minor and major bumps must be distinct")
	}

	if !ident.LegalBump(prev, minor, ident.MandatoryBump) {
		t.Error("minor bump should be legal under MandatoryBump")
	}
	if !ident.LegalBump(prev, major, ident.MandatoryBump) {
		t.Error("major bump should be legal under MandatoryBump")
	}
	if ident.LegalBump(prev, prev, ident.MandatoryBump) {
		t.Error("no-op should not be legal under MandatoryBump")
	}
	if !ident.LegalBump(prev, prev, ident.AnyBump) {
		t.Error("no-op should be legal under AnyBump")
	}

	illegal := ident.NewVid(1, 5)
	if ident.LegalBump(prev, illegal, ident.AnyBump) {
		t.Error("1.5 should not be a legal bump of 1.0")
	}
}

func TestLidVidRoundTrip(t *testing.T) {
	s := "urn:nasa:pds:bundle:collection::1.1"
	lv, err := ident.ParseLidVid(s)
	if err != nil {
		t.Fatal(err)
	}
	if lv.String() != s {
		t.Errorf("got %q want %q", lv.String(), s)
	}
}

func TestLidVidUnparseableVidStillReturnsLid(t *testing.T) {
	lv, err := ident.ParseLidVid("urn:nasa:pds:bundle::notaversion")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if lv.Vid.Present() {
		t.Error("expected Vid to be absent")
	}
	if lv.Lid.Bundle != "bundle" {
		t.Errorf("expected lid to still parse, got %+v", lv.Lid)
	}
}

func TestLidVidMissingSeparator(t *testing.T) {
	_, err := ident.ParseLidVid("urn:nasa:pds:bundle:1.0")
	if err == nil {
		t.Fatal("expected error for missing '::' separator")
	}
}
