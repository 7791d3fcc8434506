package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/achilleasa/polaris-cir/stats"
)

const (
	jsonlTypeStatic = "static_parameters"
	jsonlTypePath   = "path_data"
)

// A JSONL line envelope.
type jsonlEntry struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// The JSONL payload of a single path.
type jsonlPath struct {
	PathIndex int `json:"path_index"`
	stats.PathRecord
}

// Write the static parameters and records to w using the selected format.
func Write(w io.Writer, format Format, params stats.StaticParameters, records []stats.PathRecord) error {
	bw := bufio.NewWriter(w)

	var err error
	switch format {
	case CSV:
		writeCSV(bw, params, records)
	case JSONL:
		err = writeJSONL(bw, params, records)
	case TXT:
		writeTXT(bw, params, records)
	default:
		return fmt.Errorf("%w %d", ErrUnknownFormat, uint8(format))
	}
	if err != nil {
		return err
	}

	// bufio.Writer keeps the first write error and reports it on Flush.
	return bw.Flush()
}

// Encode the static parameters and records as JSONL lines without the
// trailing newline.
func EncodeLines(params stats.StaticParameters, records []stats.PathRecord) ([]string, error) {
	lines := make([]string, 0, len(records)+1)

	data, err := json.Marshal(jsonlEntry{Type: jsonlTypeStatic, Data: params})
	if err != nil {
		return nil, err
	}
	lines = append(lines, string(data))

	for i, rec := range records {
		data, err = json.Marshal(jsonlEntry{Type: jsonlTypePath, Data: jsonlPath{PathIndex: i, PathRecord: rec}})
		if err != nil {
			return nil, fmt.Errorf("export: encoding path %d: %w", i, err)
		}
		lines = append(lines, string(data))
	}

	return lines, nil
}

func writeParamHeader(w *bufio.Writer, params stats.StaticParameters, sep string) {
	fmt.Fprintf(w, "# Static Parameters for VLC Channel Impulse Response Calculation:\n")
	fmt.Fprintf(w, "# A_receiver_area_m2%s%.6e\n", sep, params.ReceiverArea)
	fmt.Fprintf(w, "# m_led_lambertian_order%s%.3f\n", sep, params.LambertianOrder)
	fmt.Fprintf(w, "# c_light_speed_ms%s%.3e\n", sep, params.PropagationSpeed)
	fmt.Fprintf(w, "# FOV_receiver_rad%s%.3f\n", sep, params.FieldOfView)
	fmt.Fprintf(w, "# T_s_optical_filter_gain%s%.1f\n", sep, params.OpticalFilterGain)
	fmt.Fprintf(w, "# g_optical_concentration%s%.1f\n", sep, params.ConcentratorGain)
	fmt.Fprintf(w, "#\n")
}

func writeRows(w *bufio.Writer, records []stats.PathRecord) {
	for i, rec := range records {
		fmt.Fprintf(
			w, "%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%d,%.6f\n",
			i, rec.PixelX, rec.PixelY,
			rec.PathLength, rec.EmissionAngle, rec.ReceptionAngle, rec.ReflectanceProduct,
			rec.ReflectionCount, rec.EmittedPower,
		)
	}
}

func writeCSV(w *bufio.Writer, params stats.StaticParameters, records []stats.PathRecord) {
	fmt.Fprintf(w, "# CIR Path Data Export (CSV Format)\n")
	writeParamHeader(w, params, ",")
	fmt.Fprintf(w, "PathIndex,PixelX,PixelY,PathLength_m,EmissionAngle_rad,ReceptionAngle_rad,ReflectanceProduct,ReflectionCount,EmittedPower_W\n")
	writeRows(w, records)
}

func writeTXT(w *bufio.Writer, params stats.StaticParameters, records []stats.PathRecord) {
	fmt.Fprintf(w, "# CIR Path Data Export with Static Parameters\n")
	writeParamHeader(w, params, "=")
	fmt.Fprintf(w, "# Path Data Format: PathIndex,PixelX,PixelY,PathLength(m),EmissionAngle(rad),ReceptionAngle(rad),ReflectanceProduct,ReflectionCount,EmittedPower(W)\n")
	writeRows(w, records)
}

func writeJSONL(w *bufio.Writer, params stats.StaticParameters, records []stats.PathRecord) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(jsonlEntry{Type: jsonlTypeStatic, Data: params}); err != nil {
		return err
	}
	for i, rec := range records {
		if err := enc.Encode(jsonlEntry{Type: jsonlTypePath, Data: jsonlPath{PathIndex: i, PathRecord: rec}}); err != nil {
			return fmt.Errorf("export: encoding path %d: %w", i, err)
		}
	}
	return nil
}
