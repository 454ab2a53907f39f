// Package notebook reads, reduces and writes Jupyter notebooks (nbformat v4).
package notebook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Cell types defined by nbformat v4.
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeRaw      = "raw"
)

// Output types defined by nbformat v4.
const (
	OutputStream        = "stream"
	OutputDisplayData   = "display_data"
	OutputExecuteResult = "execute_result"
	OutputError         = "error"
)

// MinSupportedVersion is the oldest nbformat major version Read accepts.
const MinSupportedVersion = 4

// ErrUnsupportedVersion is returned for notebooks older than nbformat 4.
var ErrUnsupportedVersion = errors.New("unsupported notebook format version")

// MultilineString holds nbformat text fields, which may be stored either as a
// single string or as a list of lines. It is always written as one string.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

// MimeBundle maps a MIME type to its raw JSON payload.
type MimeBundle map[string]json.RawMessage

// Notebook is the in-memory form of an uploaded notebook.
type Notebook struct {
	Cells         []*Cell         `json:"cells"`
	Metadata      json.RawMessage `json:"metadata"`
	NBFormat      int             `json:"nbformat"`
	NBFormatMinor int             `json:"nbformat_minor"`
}

// Cell is one notebook cell. Outputs and ExecutionCount only apply to code
// cells, Attachments only to markdown and raw cells.
type Cell struct {
	ID             string                `json:"id,omitempty"`
	CellType       string                `json:"cell_type"`
	Metadata       json.RawMessage       `json:"metadata"`
	Source         MultilineString       `json:"source"`
	Attachments    map[string]MimeBundle `json:"attachments,omitempty"`
	Outputs        []*Output             `json:"outputs,omitempty"`
	ExecutionCount *int                  `json:"execution_count,omitempty"`
}

func (c *Cell) MarshalJSON() ([]byte, error) {
	if c.CellType == CellTypeCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []*Output{}
		}
		return marshalNoEscape(struct {
			ID             string          `json:"id,omitempty"`
			CellType       string          `json:"cell_type"`
			ExecutionCount *int            `json:"execution_count"`
			Metadata       json.RawMessage `json:"metadata"`
			Outputs        []*Output       `json:"outputs"`
			Source         MultilineString `json:"source"`
		}{c.ID, c.CellType, c.ExecutionCount, objectOrEmpty(c.Metadata), outputs, c.Source})
	}
	return marshalNoEscape(struct {
		ID          string                `json:"id,omitempty"`
		CellType    string                `json:"cell_type"`
		Attachments map[string]MimeBundle `json:"attachments,omitempty"`
		Metadata    json.RawMessage       `json:"metadata"`
		Source      MultilineString       `json:"source"`
	}{c.ID, c.CellType, c.Attachments, objectOrEmpty(c.Metadata), c.Source})
}

// Output is one entry of a code cell's outputs list.
type Output struct {
	OutputType     string          `json:"output_type"`
	Name           string          `json:"name,omitempty"`
	Text           MultilineString `json:"text,omitempty"`
	Data           MimeBundle      `json:"data,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	EName          string          `json:"ename,omitempty"`
	EValue         string          `json:"evalue,omitempty"`
	Traceback      []string        `json:"traceback,omitempty"`
}

func (o *Output) MarshalJSON() ([]byte, error) {
	switch o.OutputType {
	case OutputStream:
		return marshalNoEscape(struct {
			OutputType string          `json:"output_type"`
			Name       string          `json:"name"`
			Text       MultilineString `json:"text"`
		}{o.OutputType, o.Name, o.Text})
	case OutputDisplayData:
		return marshalNoEscape(struct {
			OutputType string          `json:"output_type"`
			Data       MimeBundle      `json:"data"`
			Metadata   json.RawMessage `json:"metadata"`
		}{o.OutputType, bundleOrEmpty(o.Data), objectOrEmpty(o.Metadata)})
	case OutputExecuteResult:
		return marshalNoEscape(struct {
			OutputType     string          `json:"output_type"`
			ExecutionCount *int            `json:"execution_count"`
			Data           MimeBundle      `json:"data"`
			Metadata       json.RawMessage `json:"metadata"`
		}{o.OutputType, o.ExecutionCount, bundleOrEmpty(o.Data), objectOrEmpty(o.Metadata)})
	case OutputError:
		traceback := o.Traceback
		if traceback == nil {
			traceback = []string{}
		}
		return marshalNoEscape(struct {
			OutputType string   `json:"output_type"`
			EName      string   `json:"ename"`
			EValue     string   `json:"evalue"`
			Traceback  []string `json:"traceback"`
		}{o.OutputType, o.EName, o.EValue, traceback})
	}
	type plain Output
	return marshalNoEscape((*plain)(o))
}

// Read parses an nbformat v4 notebook.
func Read(r io.Reader) (*Notebook, error) {
	var nb Notebook
	if err := json.NewDecoder(r).Decode(&nb); err != nil {
		return nil, fmt.Errorf("failed to parse notebook: %w", err)
	}
	if nb.NBFormat < MinSupportedVersion {
		return nil, fmt.Errorf("%w: nbformat %d", ErrUnsupportedVersion, nb.NBFormat)
	}
	return &nb, nil
}

// Write serializes the notebook as compact JSON.
func (nb *Notebook) Write(w io.Writer) error {
	out := *nb
	if out.Cells == nil {
		out.Cells = []*Cell{}
	}
	out.Metadata = objectOrEmpty(out.Metadata)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to write notebook: %w", err)
	}
	return nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}

func bundleOrEmpty(b MimeBundle) MimeBundle {
	if b == nil {
		return MimeBundle{}
	}
	return b
}
