package settings

import (
	"slices"
	"testing"
)

func TestApplyListSpec(t *testing.T) {
	base := []string{"a", "b", "c"}
	tests := []struct {
		name string
		spec string
		want []string
	}{
		{"empty keeps base", "", []string{"a", "b", "c"}},
		{"replace", "c,x", []string{"c", "x"}},
		{"append", "+x,a", []string{"a", "b", "c", "x"}},
		{"remove", "-b", []string{"a", "c"}},
		{"remove wildcard", "-*", nil},
		{"prepend", "^c,x", []string{"c", "x", "a", "b"}},
		{"spaces", " +y , z ", []string{"a", "b", "c", "y", "z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyListSpec(base, tt.spec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
	if !slices.Equal(base, []string{"a", "b", "c"}) {
		t.Fatalf("base was modified: %v", base)
	}
}

func TestApplyListSpec_Empty(t *testing.T) {
	if _, err := ApplyListSpec([]string{"a"}, "+"); err == nil {
		t.Fatal("expected error for empty list after modifier")
	}
}

func TestAlgorithms_Validate(t *testing.T) {
	if err := DefaultAlgorithms().Validate(); err != nil {
		t.Fatalf("expected defaults valid, got %v", err)
	}
	bad := DefaultAlgorithms()
	bad.Ciphers = append(bad.Ciphers, "3des-cbc")
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unsupported cipher")
	}
	bad = DefaultAlgorithms()
	bad.HostKey = []string{"ssh-dss"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unsupported host key algorithm")
	}
}
