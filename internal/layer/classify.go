package layer

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"geolayer/internal/legend"
	"geolayer/internal/table"
)

// LegendScheme returns a copy of the current scheme.
func (v *VectorLayer) LegendScheme() *legend.Scheme { return v.scheme.Clone() }

// SetLegendScheme stores a copy of s and re-derives every legend index.
func (v *VectorLayer) SetLegendScheme(s *legend.Scheme) error {
	if s == nil {
		s = legend.NewSingleSymbol(v.Family(), v.Options)
	}
	v.scheme = s.Clone()
	return v.UpdateLegendIndexes()
}

// Classify builds a scheme for the field and applies it.
func (v *VectorLayer) Classify(t legend.Type, field string) error {
	s, err := v.CreateLegendScheme(t, field)
	if err != nil {
		return err
	}
	return v.SetLegendScheme(s)
}

// CreateLegendScheme builds a scheme without applying it.
func (v *VectorLayer) CreateLegendScheme(t legend.Type, field string) (*legend.Scheme, error) {
	switch t {
	case legend.SingleSymbol:
		return legend.NewSingleSymbol(v.Family(), v.Options), nil
	case legend.UniqueValue:
		return v.uniqueScheme(field)
	case legend.GraduatedColor:
		return v.graduatedScheme(field)
	}
	return nil, fmt.Errorf("unknown legend type %d", t)
}

func (v *VectorLayer) uniqueScheme(field string) (*legend.Scheme, error) {
	f, err := v.table.Field(field)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var values []legend.UniqueInput
	for i := 0; i < v.table.RowCount(); i++ {
		raw, _ := v.table.Value(i, field)
		if raw == nil {
			continue
		}
		text := table.FormatValue(raw)
		if seen[text] {
			continue
		}
		seen[text] = true
		in := legend.UniqueInput{Text: text}
		if f.Type.Numeric() {
			n, ok, err := v.table.Float(i, field)
			if err != nil || !ok || v.isMissing(n) || math.IsNaN(n) || math.IsInf(n, 0) {
				continue
			}
			in.Number, in.Numeric = n, true
		}
		values = append(values, in)
	}
	return legend.NewUniqueValue(v.Family(), field, f.Type.Numeric(), values, v.Options)
}

// FieldRange returns the min and max of a numeric field, skipping missing
// and unparsable values. ok is false when no value was usable. NaN and
// infinite cells are skipped and reported as *table.InvalidFieldValueError
// alongside a usable range.
func (v *VectorLayer) FieldRange(field string) (lo, hi float64, ok bool, err error) {
	if _, err := v.table.Field(field); err != nil {
		return 0, 0, false, err
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	var errs []error
	for i := 0; i < v.table.RowCount(); i++ {
		x, has, err := v.table.Float(i, field)
		if err != nil || !has || v.isMissing(x) {
			continue
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			raw, _ := v.table.Value(i, field)
			errs = append(errs, &table.InvalidFieldValueError{Row: i, Field: field, Value: raw, Err: table.ErrNotFinite})
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		ok = true
	}
	if !ok {
		return 0, 0, false, errors.Join(errs...)
	}
	return lo, hi, true, errors.Join(errs...)
}

func (v *VectorLayer) isMissing(x float64) bool {
	return math.Abs(x-v.Options.MissingValue) <= legend.Epsilon
}

func (v *VectorLayer) graduatedScheme(field string) (*legend.Scheme, error) {
	if _, err := v.table.Field(field); err != nil {
		return nil, err
	}
	// Non-finite cells are reported again by UpdateLegendIndexes.
	lo, hi, ok, _ := v.FieldRange(field)
	if !ok {
		return nil, fmt.Errorf("%w: field %q has no numeric values", legend.ErrCannotClassify, field)
	}
	return legend.NewGraduatedColor(v.Family(), field, lo, hi, v.Options)
}

// UpdateLegendIndexes re-derives every shape's legend index. Values that
// cannot be read as the field type leave the shape unclassified and are
// reported together as *table.InvalidFieldValueError.
func (v *VectorLayer) UpdateLegendIndexes() error {
	var errs []error
	for i, s := range v.shapes {
		idx, err := v.legendIndexFor(i)
		s.LegendIndex = idx
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *VectorLayer) legendIndexFor(row int) (int, error) {
	s := v.scheme
	if s == nil || s.BreakCount() == 0 {
		return -1, nil
	}
	switch s.Type {
	case legend.SingleSymbol:
		return 0, nil
	case legend.UniqueValue:
		raw, err := v.table.Value(row, s.FieldName)
		if err != nil || raw == nil {
			return -1, nil
		}
		text := table.FormatValue(raw)
		if !s.NumericField {
			return s.UniqueIndex(text, 0, false), nil
		}
		n, perr := strconv.ParseFloat(text, 64)
		if perr != nil {
			return -1, &table.InvalidFieldValueError{Row: row, Field: s.FieldName, Value: raw, Err: perr}
		}
		if s.IsMissing(n) {
			return -1, nil
		}
		return s.UniqueIndex(text, n, true), nil
	case legend.GraduatedColor:
		n, ok, err := v.table.Float(row, s.FieldName)
		if err != nil {
			var fe *table.InvalidFieldValueError
			if errors.As(err, &fe) {
				return -1, err
			}
			return -1, nil
		}
		if !ok {
			return -1, nil
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			raw, _ := v.table.Value(row, s.FieldName)
			return -1, &table.InvalidFieldValueError{Row: row, Field: s.FieldName, Value: raw, Err: table.ErrNotFinite}
		}
		return s.GraduatedIndex(n), nil
	}
	return -1, nil
}
