package schedule

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeImportStructuralErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "hello"},
		{name: "array root", raw: `[{"channel":1}]`},
		{name: "missing schedules", raw: `{"export_info":{}}`},
		{name: "schedules object", raw: `{"schedules":{"a":1}}`},
		{name: "schedules null", raw: `{"schedules":null}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeImport([]byte(tt.raw))
			if !errors.Is(err, ErrImportStructure) {
				t.Fatalf("err = %v, want ErrImportStructure", err)
			}
		})
	}
}

func TestDecodeImportEntrySkips(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", MaxMessageRunes+1)
	raw := `{"schedules":[
		{"channel":1,"message":"ok","date":100,"interval":60},
		{"channel":1,"message":"ok","date":100,"interval":60,"last":160},
		"not an object",
		{"channel":"1","message":"ok","date":100,"interval":60},
		{"message":"ok","date":100,"interval":60},
		{"channel":1,"message":"ok","date":100,"interval":0},
		{"channel":1,"message":"` + long + `","date":100,"interval":60},
		{"channel":1,"message":"","date":100,"interval":60},
		{"channel":1,"message":"ok","date":100,"interval":9223372036854775000},
		{"channel":1,"message":"ok","date":100,"interval":60,"last":9223372036854775000}
	]}`
	entries, skips, err := decodeImport([]byte(raw))
	if err != nil {
		t.Fatalf("decodeImport error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[1].Last != 160 {
		t.Fatalf("Last = %d, want 160", entries[1].Last)
	}
	want := map[SkipReason]int{SkipMalformed: 2, SkipMissingField: 1, SkipInvalidValue: 5}
	for k, v := range want {
		if skips[k] != v {
			t.Fatalf("skips[%s] = %d, want %d (all: %v)", k, skips[k], v, skips)
		}
	}
}

func TestDecodeImportUnicodeLimit(t *testing.T) {
	t.Parallel()
	msg := strings.Repeat("é", MaxMessageRunes)
	raw := `{"schedules":[{"channel":1,"message":"` + msg + `","date":100,"interval":60}]}`
	entries, _, err := decodeImport([]byte(raw))
	if err != nil {
		t.Fatalf("decodeImport error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (limit counts characters, not bytes)", len(entries))
	}
}
