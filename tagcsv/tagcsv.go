package tagcsv

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nci/geodrill/utils"
)

// Common tag names recognized by every table type
const (
	TagDelimiter = "delimiter"
	TagHasHeader = "has_header"
	TagDecimal   = "decimal_point"
	TagQuote     = "quote"
)

// Options supply fallback values for the common tags when the file does not
// carry them. Zero values mean ",", "false", "." and `"`.
type Options struct {
	Delimiter string
	HasHeader string
	Decimal   string
	Quote     string
}

func (o Options) withDefaults() Options {
	if o.Delimiter == "" {
		o.Delimiter = ","
	}
	if o.HasHeader == "" {
		o.HasHeader = "false"
	}
	if o.Decimal == "" {
		o.Decimal = "."
	}
	if o.Quote == "" {
		o.Quote = `"`
	}
	return o
}

// Hooks let a table specialization interpret its own tags and row fields.
// A hook owning a tag or field handles it and delegates everything else to
// BaseTagValue/BaseRowData (or to another specialization's hook). Nil hooks
// fall back to the base behavior.
type Hooks struct {
	Tag func(t *Table, name string, value string) (interface{}, error)
	Row func(t *Table, fields []string) ([]interface{}, error)
}

// Table reads a delimited text file whose leading lines are `#name=value`
// metadata tags, optionally followed by one header row and then data rows.
// Rows are fetched eagerly by FetchData into positional typed columns.
type Table struct {
	file    *os.File
	scanner *bufio.Scanner
	row     string
	pending bool

	hooks Hooks

	// Tags maps tag names to their resolved typed values.
	Tags map[string]interface{}
	// FieldNames holds the header column names, empty without a header.
	FieldNames []string
	// Columns holds one homogeneous value sequence per column. All columns
	// have equal length.
	Columns [][]interface{}
}

// Open reads the tag block and header of the named file. The first data row
// stays pending until FetchData consumes the remaining lines.
func Open(filename string, opts Options, hooks Hooks) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	t := &Table{
		file:    f,
		scanner: bufio.NewScanner(f),
		hooks:   hooks,
		Tags:    make(map[string]interface{}),
	}

	raw := t.fetchTags()
	o := opts.withDefaults()
	for name, fallback := range map[string]string{
		TagDelimiter: o.Delimiter,
		TagHasHeader: o.HasHeader,
		TagDecimal:   o.Decimal,
		TagQuote:     o.Quote,
	} {
		if _, ok := raw[name]; !ok {
			raw[name] = fallback
		}
	}

	if t.pending && strings.EqualFold(raw[TagHasHeader], "true") {
		for _, cell := range strings.Split(t.row, raw[TagDelimiter]) {
			t.FieldNames = append(t.FieldNames, strings.Trim(strings.TrimSpace(cell), raw[TagQuote]))
		}
		t.advance()
	}

	// The common tags resolve first so that hooks may consult has_header and
	// decimal_point while interpreting their own tags.
	commonTags := []string{TagDelimiter, TagHasHeader, TagDecimal, TagQuote}
	for _, name := range commonTags {
		if err := t.transformTag(name, raw[name]); err != nil {
			f.Close()
			return nil, err
		}
		delete(raw, name)
	}
	rest := make([]string, 0, len(raw))
	for name := range raw {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		if err := t.transformTag(name, raw[name]); err != nil {
			f.Close()
			return nil, err
		}
	}

	return t, nil
}

// fetchTags consumes leading `#name=value` lines. The first non-tag line is
// left pending as the header or first data row. Comment lines without '='
// are skipped.
func (t *Table) fetchTags() map[string]string {
	raw := make(map[string]string)
	for t.scanner.Scan() {
		line := strings.TrimSpace(t.scanner.Text())
		if strings.HasPrefix(line, "#") {
			if eq := strings.Index(line[1:], "="); eq != -1 {
				name := strings.TrimSpace(line[1 : 1+eq])
				value := strings.TrimSpace(line[2+eq:])
				raw[name] = value
			}
			continue
		}
		t.row = line
		t.pending = true
		break
	}
	return raw
}

func (t *Table) advance() {
	if t.scanner.Scan() {
		t.row = strings.TrimSpace(t.scanner.Text())
		t.pending = true
	} else {
		t.row = ""
		t.pending = false
	}
}

func (t *Table) transformTag(name string, value string) error {
	v, err := t.tagValue(name, value)
	if err != nil {
		return err
	}
	t.Tags[name] = v
	return nil
}

func (t *Table) tagValue(name string, value string) (interface{}, error) {
	if t.hooks.Tag != nil {
		return t.hooks.Tag(t, name, value)
	}
	return BaseTagValue(t, name, value)
}

func (t *Table) rowData(fields []string) ([]interface{}, error) {
	if t.hooks.Row != nil {
		return t.hooks.Row(t, fields)
	}
	return BaseRowData(t, fields)
}

// BaseTagValue is the base tag interpretation: has_header becomes a bool,
// everything else stays a string. Specialization hooks call it for tags they
// do not own.
func BaseTagValue(t *Table, name string, value string) (interface{}, error) {
	if name == TagHasHeader {
		return strings.EqualFold(value, "true"), nil
	}
	return value, nil
}

// BaseRowData is the base row interpretation: every cell stripped of
// whitespace and quotes. Specialization hooks call it first and then convert
// the fields they own.
func BaseRowData(t *Table, fields []string) ([]interface{}, error) {
	row := make([]interface{}, len(fields))
	for i, f := range fields {
		row[i] = strings.Trim(strings.TrimSpace(f), t.Quote())
	}
	return row, nil
}

// FetchData parses the pending row and every remaining line into columns,
// then releases the underlying file.
func (t *Table) FetchData() error {
	if t.pending && t.row != "" {
		if err := t.processRow(); err != nil {
			t.Close()
			return err
		}
	}
	for t.scanner.Scan() {
		t.row = strings.TrimSpace(t.scanner.Text())
		if t.row == "" {
			continue
		}
		if err := t.processRow(); err != nil {
			t.Close()
			return err
		}
	}
	err := t.scanner.Err()
	t.pending = false
	t.releaseFile()
	return err
}

func (t *Table) processRow() error {
	row, err := t.rowData(strings.Split(t.row, t.Delimiter()))
	if err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		for _, v := range row {
			t.Columns = append(t.Columns, []interface{}{v})
		}
		return nil
	}
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d fields, expected %d", len(row), len(t.Columns))
	}
	for i, v := range row {
		t.Columns[i] = append(t.Columns[i], v)
	}
	return nil
}

// Tag returns the resolved value of a tag and fails with a
// RequiredTagMissing kind when the tag is absent.
func (t *Table) Tag(name string) (interface{}, error) {
	if v, ok := t.Tags[name]; ok {
		return v, nil
	}
	return nil, utils.NewError(utils.KindRequiredTagMissing,
		"tag '%s' is required but is missing in your file", name)
}

// TagOr returns the resolved value of a tag, or def when absent.
func (t *Table) TagOr(name string, def interface{}) interface{} {
	if v, ok := t.Tags[name]; ok {
		return v
	}
	return def
}

// HasTag reports whether a tag is present.
func (t *Table) HasTag(name string) bool {
	_, ok := t.Tags[name]
	return ok
}

// Delimiter returns the resolved field delimiter.
func (t *Table) Delimiter() string {
	if v, ok := t.Tags[TagDelimiter].(string); ok {
		return v
	}
	return ","
}

// Quote returns the resolved quote character.
func (t *Table) Quote() string {
	if v, ok := t.Tags[TagQuote].(string); ok {
		return v
	}
	return `"`
}

// Decimal returns the resolved decimal separator.
func (t *Table) Decimal() string {
	if v, ok := t.Tags[TagDecimal].(string); ok {
		return v
	}
	return "."
}

// HasHeader reports whether the table carries a header row.
func (t *Table) HasHeader() bool {
	v, _ := t.Tags[TagHasHeader].(bool)
	return v
}

// ParseFloat parses a numeric cell honoring the decimal_point tag.
func (t *Table) ParseFloat(value string) (float64, error) {
	if dec := t.Decimal(); dec != "." {
		value = strings.Replace(value, dec, ".", -1)
	}
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

// ResolveFieldRef resolves a column reference given either as a numeric
// index or, when the table has a header, as a column name.
func (t *Table) ResolveFieldRef(ref string) (int, error) {
	if idx, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		return idx, nil
	}
	if t.HasHeader() {
		for i, name := range t.FieldNames {
			if name == ref {
				return i, nil
			}
		}
		return -1, fmt.Errorf("cannot resolve field reference '%s'", ref)
	}
	return -1, fmt.Errorf("field reference '%s' must be numeric in a table without header", ref)
}

// NumRows returns the number of fetched data rows.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0])
}

// Column returns the values of one column by index.
func (t *Table) Column(i int) []interface{} {
	return t.Columns[i]
}

// GroupRowIndices maps each distinct value of the referenced column to the
// ordered row indices sharing it.
func (t *Table) GroupRowIndices(fieldRef string) (map[interface{}][]int, error) {
	field, err := t.ResolveFieldRef(fieldRef)
	if err != nil {
		return nil, err
	}
	if field < 0 || field >= len(t.Columns) {
		return nil, fmt.Errorf("field index %d out of range", field)
	}
	result := make(map[interface{}][]int)
	for i, v := range t.Columns[field] {
		result[v] = append(result[v], i)
	}
	return result, nil
}

func (t *Table) releaseFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.scanner = nil
	}
}

// Close releases the data buffer and the file handle. It is safe to call
// more than once.
func (t *Table) Close() {
	t.Columns = nil
	t.releaseFile()
}
