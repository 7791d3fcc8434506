package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/polaris-cir/renderer"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/olekukonko/tablewriter"
)

func displayFrameStats(frameStats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tracer", "Block height", "% of frame", "Paths", "Accepted", "Render time"})

	var paths, accepted uint64
	for _, stat := range frameStats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			fmt.Sprintf("%d", stat.Paths),
			fmt.Sprintf("%d", stat.Accepted),
			stat.RenderTime.String(),
		})
		paths += stat.Paths
		accepted += stat.Accepted
	}
	table.SetFooter([]string{"", "", "TOTAL", fmt.Sprintf("%d", paths), fmt.Sprintf("%d", accepted), frameStats.RenderTime.String()})

	table.Render()
	logger.Noticef("frame %d statistics\n%s", frameStats.Frame, buf.String())
}

func displayChannelStats(snap stats.Snapshot) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Channel", "Total", "Average"})
	for _, total := range snap.Channels {
		table.Append([]string{
			total.Channel.String(),
			fmt.Sprintf("%.3f", total.Sum),
			fmt.Sprintf("%.3f", total.Average),
		})
	}
	table.SetFooter([]string{"TOTAL RAYS", fmt.Sprintf("%d", snap.TotalRays), fmt.Sprintf("%.3f", snap.AvgRaysPerPixel)})

	table.Render()
	logger.Noticef("frame %d channels (%dx%d, %s)\n%s", snap.Frame, snap.Width, snap.Height, snap.Mode, buf.String())
}

func displayCIRStats(snap stats.Snapshot) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Metric", "Value"})

	rows := [][]string{
		{"Valid samples", fmt.Sprintf("%d", snap.CIRValidSamples)},
	}
	if snap.Histogram != nil {
		rows = append(rows,
			[]string{"Time resolution", formatDelay(snap.Histogram.TimeResolution)},
			[]string{"Total power", fmt.Sprintf("%e W", snap.CIR.TotalPower)},
			[]string{"Peak delay", fmt.Sprintf("%s (bin %d)", formatDelay(snap.CIR.PeakDelay), snap.CIR.PeakBin)},
			[]string{"Mean delay", formatDelay(snap.CIR.MeanDelay)},
			[]string{"RMS delay spread", formatDelay(snap.CIR.RMSDelaySpread)},
			[]string{"Non-zero bins", fmt.Sprintf("%d", snap.CIR.NonZeroBins)},
			[]string{"Overflow", fmt.Sprintf("%d (%02.1f %%)", snap.CIR.Overflow, 100*snap.CIR.OverflowRatio)},
		)
	}
	if snap.Mode != stats.AggregateOnly {
		rows = append(rows,
			[]string{"Raw records", fmt.Sprintf("%d of %d", snap.RawValid, snap.RawAttempted)},
			[]string{"Dropped records", fmt.Sprintf("%d", snap.RawDropped)},
			[]string{"Invalid records", fmt.Sprintf("%d", snap.RawInvalid)},
			[]string{"Delay p50/p90/p99", fmt.Sprintf("%s / %s / %s", formatDelay(snap.DelayP50), formatDelay(snap.DelayP90), formatDelay(snap.DelayP99))},
		)
	}
	table.AppendBulk(rows)

	table.Render()
	logger.Noticef("frame %d CIR statistics\n%s", snap.Frame, buf.String())
}

// Format a delay given in seconds.
func formatDelay(seconds float64) string {
	return fmt.Sprintf("%.3f ns", seconds*1e9)
}
