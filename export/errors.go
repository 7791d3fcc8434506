package export

import "errors"

var (
	ErrNoRecords     = errors.New("export: no valid records to export")
	ErrUnknownFormat = errors.New("export: unknown export format")
)
