package settings

import (
	"encoding/json"
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"512", 512, false},
		{"64K", 64 << 10, false},
		{"1m", 1 << 20, false},
		{"2G", 2 << 30, false},
		{"", 0, true},
		{"G", 0, true},
		{"1T", 0, true},
		{"-1", 0, true},
		{"99999999999999999999G", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestByteSize_String(t *testing.T) {
	tests := map[ByteSize]string{
		0:         "0",
		1000:      "1000",
		4 << 10:   "4K",
		3 << 20:   "3M",
		1 << 30:   "1G",
		1<<30 + 1: "1073741825",
	}
	for in, want := range tests {
		if got := in.String(); got != want {
			t.Errorf("String(%d)=%q, want %q", uint64(in), got, want)
		}
	}
}

func TestByteSize_JSON(t *testing.T) {
	var r Rekey
	if err := json.Unmarshal([]byte(`{"Bytes":"1M","Interval":"10m"}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Bytes != 1<<20 {
		t.Fatalf("expected 1M, got %d", r.Bytes)
	}
	if err := json.Unmarshal([]byte(`{"Bytes":4096}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Bytes != 4096 {
		t.Fatalf("expected 4096, got %d", r.Bytes)
	}
	data, err := json.Marshal(Rekey{Bytes: 2 << 30})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"Bytes":"2G"}` {
		t.Fatalf("unexpected JSON %s", data)
	}
}
