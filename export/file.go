package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/achilleasa/polaris-cir/log"
	"github.com/achilleasa/polaris-cir/stats"
)

const (
	// Default output folder for timestamped exports.
	DefaultDir = "CIRData"

	filePrefix      = "CIRData_"
	timestampLayout = "20060102_150405"
)

// An Exporter writes path records to timestamped files.
type Exporter struct {
	logger log.Logger

	// The output folder; created on demand.
	Dir string

	// The clock used for generating file names.
	Now func() time.Time
}

// Create a new exporter that writes to dir. If dir is empty, DefaultDir is used.
func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = DefaultDir
	}
	return &Exporter{
		logger: log.New("export"),
		Dir:    dir,
		Now:    time.Now,
	}
}

// Generate a CIRData_YYYYMMDD_HHMMSS file name for the given format.
func (e *Exporter) Filename(format Format) string {
	return filePrefix + e.Now().Format(timestampLayout) + format.Extension()
}

// Export the records to a new timestamped file inside the output folder
// and return its path. A failed export removes the partially written file.
func (e *Exporter) Export(format Format, params stats.StaticParameters, records []stats.PathRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("export: creating output folder %q: %w", e.Dir, err)
	}

	path := filepath.Join(e.Dir, e.Filename(format))
	if err := ExportFile(path, format, params, records); err != nil {
		e.logger.Errorf("failed to export %d paths to %q: %v", len(records), path, err)
		return "", err
	}

	e.logger.Infof("exported %d paths to %q (%s)", len(records), path, format)
	return path, nil
}

// Export the records to the file at path, replacing any existing contents.
func ExportFile(path string, format Format, params stats.StaticParameters, records []stats.PathRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %q: %w", path, err)
	}

	err = Write(f, format, params, records)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("export: writing %q: %w", path, err)
	}
	return nil
}
