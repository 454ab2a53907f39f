package notebook

import (
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// DefaultMaxOutputChars caps stream text and error tracebacks, in characters.
	DefaultMaxOutputChars = 10000

	// OutputTruncatedMarker is appended to truncated stream text.
	OutputTruncatedMarker = "\n... [Output truncated]"

	// TracebackTruncatedMarker is appended as the last traceback entry.
	TracebackTruncatedMarker = "... [Traceback truncated]"

	mimePNG       = "image/png"
	mimeTextPlain = "text/plain"
)

// Options tunes the reduction.
type Options struct {
	MaxOutputChars int
}

// DefaultOptions returns the options used by the web service.
func DefaultOptions() Options {
	return Options{MaxOutputChars: DefaultMaxOutputChars}
}

// Stats summarizes what a reduction changed.
type Stats struct {
	CellsIn          int `json:"cells_in"`
	CellsOut         int `json:"cells_out"`
	CellsDropped     int `json:"cells_dropped"`
	OutputsDropped   int `json:"outputs_dropped"`
	OutputsTruncated int `json:"outputs_truncated"`
	ImagesReencoded  int `json:"images_reencoded"`
	ImagesSkipped    int `json:"images_skipped"`
}

// Reducer shrinks notebooks in place.
type Reducer struct {
	opts   Options
	logger *zap.Logger
}

func NewReducer(opts Options, logger *zap.Logger) *Reducer {
	if opts.MaxOutputChars <= 0 {
		opts.MaxOutputChars = DefaultMaxOutputChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{opts: opts, logger: logger}
}

// Reduce drops whitespace-only cells, filters and truncates outputs and
// re-encodes PNG images. The notebook is modified in place.
func (r *Reducer) Reduce(nb *Notebook) Stats {
	stats := Stats{CellsIn: len(nb.Cells)}

	kept := nb.Cells[:0]
	for i, cell := range nb.Cells {
		if strings.TrimSpace(string(cell.Source)) == "" {
			stats.CellsDropped++
			continue
		}
		if cell.Outputs != nil {
			cell.Outputs = r.filterOutputs(i, cell.Outputs, &stats)
		}
		for name, bundle := range cell.Attachments {
			r.reencodeBundleImage(i, "attachment "+name, bundle, &stats)
		}
		kept = append(kept, cell)
	}
	for i := len(kept); i < len(nb.Cells); i++ {
		nb.Cells[i] = nil
	}
	nb.Cells = kept
	stats.CellsOut = len(kept)

	r.logger.Debug("Notebook reduced",
		zap.Int("cells_in", stats.CellsIn),
		zap.Int("cells_out", stats.CellsOut),
		zap.Int("outputs_truncated", stats.OutputsTruncated),
		zap.Int("images_reencoded", stats.ImagesReencoded),
		zap.Int("images_skipped", stats.ImagesSkipped))
	return stats
}

func (r *Reducer) filterOutputs(cellIdx int, outputs []*Output, stats *Stats) []*Output {
	filtered := make([]*Output, 0, len(outputs))
	for _, out := range outputs {
		switch out.OutputType {
		case OutputDisplayData, OutputExecuteResult:
			if _, ok := out.Data[mimePNG]; ok {
				r.reencodeBundleImage(cellIdx, out.OutputType, out.Data, stats)
			} else if text, ok := out.Data[mimeTextPlain]; ok {
				out.Data = MimeBundle{mimeTextPlain: text}
			}
		case OutputStream:
			if text, cut := truncateRunes(string(out.Text), r.opts.MaxOutputChars); cut {
				out.Text = MultilineString(text + OutputTruncatedMarker)
				stats.OutputsTruncated++
			}
		case OutputError:
			if tb, cut := truncateTraceback(out.Traceback, r.opts.MaxOutputChars); cut {
				out.Traceback = tb
				stats.OutputsTruncated++
			}
		default:
			stats.OutputsDropped++
			continue
		}
		filtered = append(filtered, out)
	}
	return filtered
}

// reencodeBundleImage rewrites the bundle's image/png entry. Decode failures
// are logged and leave the entry untouched.
func (r *Reducer) reencodeBundleImage(cellIdx int, where string, bundle MimeBundle, stats *Stats) {
	raw, ok := bundle[mimePNG]
	if !ok {
		return
	}

	var payload MultilineString
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.skipImage(cellIdx, where, err, stats)
		return
	}
	encoded, err := ReencodePNG(string(payload))
	if err != nil {
		r.skipImage(cellIdx, where, err, stats)
		return
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		r.skipImage(cellIdx, where, err, stats)
		return
	}
	bundle[mimePNG] = b
	stats.ImagesReencoded++
}

func (r *Reducer) skipImage(cellIdx int, where string, err error, stats *Stats) {
	stats.ImagesSkipped++
	r.logger.Warn("Skipping image that could not be re-encoded",
		zap.Int("cell", cellIdx),
		zap.String("location", where),
		zap.Error(err))
}

// truncateRunes cuts s to at most limit characters.
func truncateRunes(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// truncateTraceback keeps the first limit characters of the traceback, split
// across its entries, and appends TracebackTruncatedMarker.
func truncateTraceback(traceback []string, limit int) ([]string, bool) {
	total := 0
	for _, line := range traceback {
		total += utf8.RuneCountInString(line)
	}
	if total <= limit {
		return traceback, false
	}

	out := make([]string, 0, len(traceback)+1)
	remaining := limit
	for _, line := range traceback {
		if remaining == 0 {
			break
		}
		kept, cut := truncateRunes(line, remaining)
		out = append(out, kept)
		remaining -= utf8.RuneCountInString(kept)
		if cut {
			break
		}
	}
	return append(out, TracebackTruncatedMarker), true
}
