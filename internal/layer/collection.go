package layer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"geolayer/internal/geom"
	"geolayer/internal/table"
)

// FromCollection builds a layer from loaded shapes. The layer takes the most
// common geometry family; shapes of other families are dropped with their
// rows. Column types are inferred from the values.
func FromCollection(name string, c *geom.Collection) (*VectorLayer, error) {
	if c == nil || len(c.Shapes) == 0 {
		return nil, errors.New("empty collection")
	}
	pts, lines, polys := c.Counts()
	family := geom.FamilyPoint
	if lines > pts && lines >= polys {
		family = geom.FamilyLine
	} else if polys > pts && polys > lines {
		family = geom.FamilyPolygon
	}

	var keep []int
	for i, s := range c.Shapes {
		if s.Family() == family {
			keep = append(keep, i)
		}
	}
	if dropped := len(c.Shapes) - len(keep); dropped > 0 {
		logger.Printf("[LOAD] %s: dropped %d shapes that are not %s", name, dropped, family)
	}

	fields := make([]table.Field, len(c.Columns))
	for j, col := range c.Columns {
		var vals []any
		for _, i := range keep {
			if j < len(c.Rows[i]) {
				vals = append(vals, c.Rows[i][j])
			}
		}
		fields[j] = table.Field{Name: col, Type: InferFieldType(vals)}
	}

	t := table.New(fields...)
	shapes := make([]*geom.Shape, 0, len(keep))
	for _, i := range keep {
		row := make(table.Row, len(fields))
		copy(row, c.Rows[i])
		if err := t.AppendRow(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		shapes = append(shapes, c.Shapes[i])
	}

	v := NewVectorLayer(name, geom.BaseType(family))
	if err := v.ReplaceAll(shapes, t); err != nil {
		return nil, err
	}
	return v, nil
}

// ToCollection exports shapes and rows, for encoders.
func (v *VectorLayer) ToCollection() *geom.Collection {
	c := &geom.Collection{Columns: v.table.FieldNames()}
	for i, s := range v.shapes {
		row, _ := v.table.Row(i)
		c.Shapes = append(c.Shapes, s)
		c.Rows = append(c.Rows, row)
	}
	return c
}

// InferFieldType picks the narrowest type every non-empty value fits.
func InferFieldType(vals []any) table.FieldType {
	isInt, isFloat, isBool, isDate := true, true, true, true
	seen := false
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
			continue
		case bool:
			seen = true
			isInt, isFloat, isDate = false, false, false
		case int, int64:
			seen = true
			isBool, isDate = false, false
		case float64:
			seen = true
			isBool, isDate = false, false
			if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
				isInt = false
			}
		case time.Time:
			seen = true
			isInt, isFloat, isBool = false, false, false
		case string:
			s := strings.TrimSpace(x)
			if s == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
			if _, err := strconv.ParseBool(s); err != nil {
				isBool = false
			}
			if _, err := time.Parse(table.DateLayout, s); err != nil {
				isDate = false
			}
		default:
			return table.String
		}
	}
	switch {
	case !seen:
		return table.String
	case isBool && !isInt:
		return table.Boolean
	case isInt:
		return table.Integer
	case isFloat:
		return table.Double
	case isDate:
		return table.Date
	}
	return table.String
}
