package export

import (
	"fmt"
	"strings"
)

// Format selects the textual encoding of an export.
type Format uint8

const (
	// Comma-separated values with a comment-prefixed header.
	CSV Format = iota
	// One JSON object per line.
	JSONL
	// Plain comma-delimited text.
	TXT
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSONL:
		return "jsonl"
	case TXT:
		return "txt"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Get the file extension (including the leading dot) for this format.
func (f Format) Extension() string {
	return "." + f.String()
}

// Parse a format from its textual representation.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "csv":
		return CSV, nil
	case "jsonl", "json":
		return JSONL, nil
	case "txt", "text":
		return TXT, nil
	}
	return CSV, fmt.Errorf("%w %q", ErrUnknownFormat, s)
}
