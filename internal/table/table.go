// Package table is the attribute store of a vector layer: typed columns and
// one row per shape, addressed by the shape's index.
package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType is the storage type of a column.
type FieldType int

const (
	String FieldType = iota
	Integer
	Double
	Date
	Boolean
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Double:
		return "double"
	case Date:
		return "date"
	case Boolean:
		return "boolean"
	}
	return "string"
}

// Numeric reports whether values of the type can be classified by range.
func (t FieldType) Numeric() bool { return t == Integer || t == Double }

// ParseFieldType accepts the names printed by FieldType.String.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "double", "float", "number":
		return Double, nil
	case "date":
		return Date, nil
	case "boolean", "bool":
		return Boolean, nil
	}
	return String, fmt.Errorf("unknown field type %q", s)
}

// DateLayout is used for date captions and text conversion.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, "2006-01-02 15:04:05", time.RFC3339, "20060102"}

var (
	ErrFieldNotFound  = errors.New("field not found")
	ErrFieldExists    = errors.New("field already exists")
	ErrRowOutOfRange  = errors.New("row index out of range")
	ErrSchemaMismatch = errors.New("row does not match schema")
	ErrNotFinite      = errors.New("value is not finite")
)

// InvalidFieldValueError reports a cell that cannot be read as its column type.
type InvalidFieldValueError struct {
	Row   int
	Field string
	Value any
	Err   error
}

func (e *InvalidFieldValueError) Error() string {
	return fmt.Sprintf("row %d field %q: invalid value %v: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *InvalidFieldValueError) Unwrap() error { return e.Err }

// Field is a named, typed column.
type Field struct {
	Name string
	Type FieldType
}

// Row holds one value per field, in field order. nil is a missing value.
type Row []any

// Clone copies the row values.
func (r Row) Clone() Row {
	return append(Row(nil), r...)
}

// Table is an ordered set of fields and rows.
type Table struct {
	fields []Field
	rows   []Row
}

func New(fields ...Field) *Table {
	return &Table{fields: append([]Field(nil), fields...)}
}

func (t *Table) Fields() []Field { return append([]Field(nil), t.fields...) }

func (t *Table) FieldNames() []string {
	out := make([]string, len(t.fields))
	for i, f := range t.fields {
		out[i] = f.Name
	}
	return out
}

func (t *Table) RowCount() int { return len(t.rows) }

// FieldIndex returns -1 when the name is unknown. Names match exactly.
func (t *Table) FieldIndex(name string) int {
	for i, f := range t.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) Field(name string) (Field, error) {
	i := t.FieldIndex(name)
	if i < 0 {
		return Field{}, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return t.fields[i], nil
}

// UniqueName returns name, or name suffixed _1, _2... when it collides.
func (t *Table) UniqueName(name string) string {
	if t.FieldIndex(name) < 0 {
		return name
	}
	for i := 1; ; i++ {
		n := name + "_" + strconv.Itoa(i)
		if t.FieldIndex(n) < 0 {
			return n
		}
	}
}

// AddField appends a column, renaming it on collision. It returns the name used.
func (t *Table) AddField(name string, typ FieldType) string {
	name = t.UniqueName(name)
	t.fields = append(t.fields, Field{Name: name, Type: typ})
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], nil)
	}
	return name
}

func (t *Table) RemoveField(name string) error {
	i := t.FieldIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	t.fields = append(t.fields[:i], t.fields[i+1:]...)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r][:i], t.rows[r][i+1:]...)
	}
	return nil
}

// RenameField changes a column name; values stay in place.
func (t *Table) RenameField(oldName, newName string) error {
	i := t.FieldIndex(oldName)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if t.FieldIndex(newName) >= 0 {
		return fmt.Errorf("%w: %s", ErrFieldExists, newName)
	}
	t.fields[i].Name = newName
	return nil
}

// NewRow returns a blank row for the current schema.
func (t *Table) NewRow() Row {
	return make(Row, len(t.fields))
}

// Normalize coerces every value of r to the schema. r is not modified.
func (t *Table) Normalize(r Row) (Row, error) {
	if r == nil {
		return t.NewRow(), nil
	}
	if len(r) != len(t.fields) {
		return nil, fmt.Errorf("%w: %d values for %d fields", ErrSchemaMismatch, len(r), len(t.fields))
	}
	out := make(Row, len(r))
	for i, v := range r {
		c, err := Coerce(t.fields[i].Type, v)
		if err != nil {
			return nil, &InvalidFieldValueError{Row: -1, Field: t.fields[i].Name, Value: v, Err: err}
		}
		out[i] = c
	}
	return out, nil
}

// InsertRow places a row at pos (0..RowCount). A nil row inserts a blank one.
func (t *Table) InsertRow(pos int, r Row) error {
	if pos < 0 || pos > len(t.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, pos)
	}
	n, err := t.Normalize(r)
	if err != nil {
		if fe, ok := err.(*InvalidFieldValueError); ok {
			fe.Row = pos
		}
		return err
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[pos+1:], t.rows[pos:])
	t.rows[pos] = n
	return nil
}

func (t *Table) AppendRow(r Row) error {
	return t.InsertRow(len(t.rows), r)
}

func (t *Table) RemoveRow(i int) error {
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, i)
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) (Row, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, i)
	}
	return t.rows[i].Clone(), nil
}

func (t *Table) ValueAt(row, col int) (any, error) {
	if row < 0 || row >= len(t.rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	if col < 0 || col >= len(t.fields) {
		return nil, fmt.Errorf("%w: column %d", ErrFieldNotFound, col)
	}
	return t.rows[row][col], nil
}

func (t *Table) Value(row int, field string) (any, error) {
	col := t.FieldIndex(field)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}
	return t.ValueAt(row, col)
}

// SetValue stores v after coercing it to the field type.
func (t *Table) SetValue(row int, field string, v any) error {
	col := t.FieldIndex(field)
	if col < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	c, err := Coerce(t.fields[col].Type, v)
	if err != nil {
		return &InvalidFieldValueError{Row: row, Field: field, Value: v, Err: err}
	}
	t.rows[row][col] = c
	return nil
}

// Float reads a cell as a number. Missing values report ok=false with no error.
func (t *Table) Float(row int, field string) (v float64, ok bool, err error) {
	raw, err := t.Value(row, field)
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, false, &InvalidFieldValueError{Row: row, Field: field, Value: raw, Err: err}
	}
	return f, true, nil
}

// Text formats a cell for display. Missing values are "".
func (t *Table) Text(row int, field string) string {
	v, err := t.Value(row, field)
	if err != nil {
		return ""
	}
	return FormatValue(v)
}

// CloneSchema returns an empty table with the same fields.
func (t *Table) CloneSchema() *Table {
	return New(t.fields...)
}

// Clone deep-copies fields and rows.
func (t *Table) Clone() *Table {
	c := t.CloneSchema()
	c.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = r.Clone()
	}
	return c
}

// Coerce converts v to the Go representation of typ:
// string, int64, float64, time.Time or bool.
func Coerce(typ FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && typ != String && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	switch typ {
	case String:
		return FormatValue(v), nil
	case Integer:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(strings.TrimSpace(x), 64)
				if ferr != nil {
					return nil, err
				}
				return int64(f), nil
			}
			return n, nil
		}
	case Double:
		return toFloat(v)
	case Date:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseDate(x)
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "t", "true", "y", "yes", "1":
				return true, nil
			case "f", "false", "n", "no", "0":
				return false, nil
			}
			return nil, fmt.Errorf("not a boolean: %q", x)
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, typ)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, s)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatValue renders a stored value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprint(v)
}
