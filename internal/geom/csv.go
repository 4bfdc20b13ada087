package geom

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a CSV with latitude/longitude columns and returns point shapes.
// Column detection: lat|latitude|y and lon|lng|long|longitude|x (case-insensitive).
// Every column, coordinates included, is kept as a text attribute.
func LoadCSV(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("empty csv")
	}
	header := recs[0]
	idxLat, idxLon := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		}
	}
	if idxLat == -1 || idxLon == -1 {
		return nil, errors.New("csv: latitude/longitude columns not found")
	}
	c := &Collection{Columns: append([]string(nil), header...)}
	for _, rec := range recs[1:] {
		if idxLon >= len(rec) || idxLat >= len(rec) {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(rec[idxLon]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(rec[idxLat]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		row := make([]any, len(header))
		for i := range header {
			if i < len(rec) {
				row[i] = rec[i]
			}
		}
		c.add(NewPoint(lon, lat), row)
	}
	if len(c.Shapes) == 0 {
		return nil, errors.New("csv: no valid points parsed")
	}
	return c, nil
}
