package bench

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/cinegraph/pkg/update"
)

// Report formats accepted by NewReporter.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// columnWidths pads timings in the text format. Unlisted phases use
// defaultColumnWidth.
var columnWidths = map[string]int{
	"read_roles":               6,
	update.StepBumpYears:       6,
	update.StepActorAverages:   4,
	update.StepDirectorAverage: 4,
	update.StepDeleteActors:    4,
	update.StepDeleteDirectors: 4,
	QueryNumMovies:             4,
	QueryAgeHistogram:          4,
	QueryAvgAge:                4,
	QuerySumOfAges:             4,
	QueryIsAlsoActor:           4,
	QueryDirectorsAlsoActors:   4,
	QueryFullName:              4,
}

const defaultColumnWidth = 5

// Reporter prints run reports.
type Reporter struct {
	writer io.Writer
	format string
}

// NewReporter creates a reporter that writes format to w. A nil writer
// means stdout; an empty format means text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = FormatText
	}
	return &Reporter{writer: w, format: format}
}

// Print writes the report in the configured format.
func (r *Reporter) Print(report *Report) error {
	switch r.format {
	case FormatText:
		return r.PrintCompact(report)
	case FormatJSON:
		return r.PrintJSON(report)
	case FormatYAML:
		return r.PrintYAML(report)
	default:
		return fmt.Errorf("unknown report format %q", r.format)
	}
}

// PrintCompact writes comma-separated millisecond timings.
//
// A run without queries prints its load and update timings on one line.
// A run with queries prints one line per query pass and nothing for the
// load or update.
func (r *Reporter) PrintCompact(report *Report) error {
	var b strings.Builder
	for _, run := range report.Runs {
		if len(run.Queries) == 0 {
			writeTimings(&b, append(append([]Phase{}, run.Load...), run.Update...))
			b.WriteString("\n")
			continue
		}
		for i, pass := range run.Queries {
			if i > 0 {
				b.WriteString("\n")
			}
			writeTimings(&b, pass.Phases)
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.writer, b.String())
	return err
}

func writeTimings(b *strings.Builder, phases []Phase) {
	for i, p := range phases {
		if i > 0 {
			b.WriteString(",")
		}
		width, ok := columnWidths[p.Name]
		if !ok {
			width = defaultColumnWidth
		}
		fmt.Fprintf(b, "%*d", width, p.Duration/time.Millisecond)
	}
}

// PrintJSON writes the report as indented JSON.
func (r *Reporter) PrintJSON(report *Report) error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAML writes the report as YAML.
func (r *Reporter) PrintYAML(report *Report) error {
	enc := yaml.NewEncoder(r.writer)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
