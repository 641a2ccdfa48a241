package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/drblury/actuator/internal/runtime/jsoncodec"
)

// Output formats understood by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

const maxValueWidth = 100

// Formatter renders management API answers.
type Formatter struct {
	out    io.Writer
	format string
	color  bool
}

func NewFormatter(out io.Writer, format string, color bool) (*Formatter, error) {
	switch format {
	case OutputTable, OutputJSON:
	default:
		return nil, fmt.Errorf("unsupported output format %q (want %s or %s)", format, OutputTable, OutputJSON)
	}
	return &Formatter{out: out, format: format, color: color}, nil
}

// Beans renders a list answer: one block of properties per object.
func (f *Formatter) Beans(beans map[string]any) error {
	if f.format == OutputJSON {
		return f.json(beans)
	}
	if len(beans) == 0 {
		f.empty("No objects registered")
		return nil
	}
	t := f.createTable("NAME", "PROPERTY", "VALUE")
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	for _, name := range sortedKeys(beans) {
		for _, kv := range flatten(beans[name]) {
			t.AppendRow(table.Row{name, kv.key, truncate(kv.value)})
		}
	}
	t.Render()
	return nil
}

// Object renders a single snapshot as key/value pairs.
func (f *Formatter) Object(obj map[string]any) error {
	if f.format == OutputJSON {
		return f.json(obj)
	}
	t := f.createTable("PROPERTY", "VALUE")
	for _, kv := range flatten(obj) {
		t.AppendRow(table.Row{kv.key, truncate(kv.value)})
	}
	t.Render()
	return nil
}

// Index renders the endpoint index.
func (f *Formatter) Index(index map[string]any) error {
	if f.format == OutputJSON {
		return f.json(index)
	}
	endpoints, _ := index["endpoints"].(map[string]any)
	t := f.createTable("ENDPOINT", "HREF", "INVOCATIONS", "WRITES", "FAILURES")
	for _, name := range sortedKeys(endpoints) {
		entry, _ := endpoints[name].(map[string]any)
		stats, _ := entry["stats"].(map[string]any)
		t.AppendRow(table.Row{name, entry["href"], number(stats["invocations"]), number(stats["writes"]), number(stats["failures"])})
	}
	t.Render()
	return nil
}

// Text writes a plain text answer unchanged.
func (f *Formatter) Text(s string) error {
	if s == "" {
		f.empty("No entries")
		return nil
	}
	_, err := io.WriteString(f.out, s)
	return err
}

// Done reports a successful write.
func (f *Formatter) Done(msg string) {
	if f.format == OutputJSON {
		return
	}
	fmt.Fprintf(f.out, "%s %s\n", f.paint(text.FgGreen, "✓"), msg)
}

func (f *Formatter) json(v any) error {
	data, err := jsoncodec.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f.out, "%s\n", data)
	return err
}

func (f *Formatter) empty(msg string) {
	fmt.Fprintln(f.out, f.paint(text.FgYellow, msg))
}

func (f *Formatter) createTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = f.paint(text.FgHiCyan, h)
	}
	t.AppendHeader(row)
	return t
}

func (f *Formatter) paint(c text.Color, s string) string {
	if !f.color {
		return s
	}
	return c.Sprint(s)
}

type property struct {
	key   string
	value string
}

// flatten turns nested objects into sorted dotted keys.
func flatten(v any) []property {
	var out []property
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch val := v.(type) {
		case map[string]any:
			if len(val) == 0 && prefix != "" {
				out = append(out, property{prefix, "{}"})
				return
			}
			for _, k := range sortedKeys(val) {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, val[k])
			}
		case []any:
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = fmt.Sprint(item)
			}
			out = append(out, property{prefix, strings.Join(parts, ", ")})
		case nil:
			out = append(out, property{prefix, ""})
		default:
			out = append(out, property{prefix, number(val)})
		}
	}
	walk("", v)
	return out
}

func number(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return fmt.Sprint(n)
	}
}

func truncate(s string) string {
	if len(s) > maxValueWidth {
		return s[:maxValueWidth-3] + "..."
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
