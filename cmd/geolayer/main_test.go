package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geolayer/internal/geom"
	"geolayer/internal/layer"
	"geolayer/internal/render"
	"geolayer/internal/table"
)

type closeFailer struct {
	strings.Builder
	err error
}

func (c *closeFailer) Close() error { return c.err }

func TestWriteCloseKeepsCloseError(t *testing.T) {
	errClose := errors.New("disk full")
	errWrite := errors.New("render failed")
	tests := []struct {
		name     string
		closeErr error
		writeErr error
		want     error
	}{
		{"clean", nil, nil, nil},
		{"close fails", errClose, nil, errClose},
		{"write fails first", errClose, errWrite, errWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &closeFailer{err: tt.closeErr}
			err := writeClose(w, func(w io.Writer) error {
				io.WriteString(w, "<svg/>")
				return tt.writeErr
			})
			if tt.want == nil && err != nil {
				t.Fatalf("writeClose = %v; want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("writeClose = %v; want %v", err, tt.want)
			}
			if w.String() != "<svg/>" {
				t.Errorf("written = %q", w.String())
			}
		})
	}
}

func TestSaveByExtension(t *testing.T) {
	v := layer.NewVectorLayer("pts", geom.TypePoint, table.Field{Name: "id", Type: table.Integer})
	for i, p := range [][2]float64{{0, 0}, {3, 4}} {
		if err := v.EditInsertShapeRow(geom.NewPoint(p[0], p[1]), i, table.Row{int64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
	dir := t.TempDir()
	tests := []struct {
		file string
		want string
	}{
		{"out.svg", "<svg"},
		{"out.geojson", "FeatureCollection"},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.file)
		if err := save(v, path, render.DefaultOptions()); err != nil {
			t.Fatalf("save %s: %v", tt.file, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("%s does not contain %q", tt.file, tt.want)
		}
	}
	if err := save(v, filepath.Join(dir, "out.txt"), render.DefaultOptions()); err == nil {
		t.Errorf("unsupported extension accepted")
	}
}
