package export

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	type spec struct {
		in  string
		exp Format
	}

	specs := []spec{
		{"csv", CSV},
		{"CSV", CSV},
		{".jsonl", JSONL},
		{"json", JSONL},
		{"txt", TXT},
		{"text", TXT},
	}

	for index, s := range specs {
		f, err := ParseFormat(s.in)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", index, err)
		}
		if f != s.exp {
			t.Fatalf("[spec %d] expected format %s; got %s", index, s.exp, f)
		}
	}

	_, err := ParseFormat("xml")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat; got %v", err)
	}
}

func TestFormatExtension(t *testing.T) {
	for _, f := range []Format{CSV, JSONL, TXT} {
		parsed, err := ParseFormat(f.Extension())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != f {
			t.Fatalf("expected extension %q to parse as %s; got %s", f.Extension(), f, parsed)
		}
	}
}
