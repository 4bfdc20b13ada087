package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"geolayer/internal/layer"
	"geolayer/internal/table"
)

type fieldRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func fieldStatus(err error) int {
	switch {
	case errors.Is(err, table.ErrFieldNotFound):
		return http.StatusNotFound
	case errors.Is(err, table.ErrFieldExists):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// AddField appends a column. A taken name is suffixed; the response carries
// the name actually used.
func (h *Handler) AddField(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	var req fieldRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json")
	}
	typ, err := table.ParseFieldType(req.Type)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	name, err := e.layer.EditAddField(req.Name, typ)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	log.Printf("[FIELDS] %s: added %s (%s)", e.layer.ID, name, typ)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"name": name, "type": typ.String()})
}

// RenameField renames :name to the name in the body.
func (h *Handler) RenameField(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	var req fieldRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid json")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.layer.EditRenameField(c.Params("name"), req.Name); err != nil {
		return errorJSON(c, fieldStatus(err), err.Error())
	}
	return c.JSON(describe(e.layer))
}

func (h *Handler) RemoveField(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.layer.EditRemoveField(c.Params("name")); err != nil {
		return errorJSON(c, fieldStatus(err), err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

// EditRow sets the attributes named in the body on row :row. Every value is
// checked against its field type before any is written.
func (h *Handler) EditRow(c fiber.Ctx) error {
	e, err := h.lookup(c)
	if e == nil {
		return err
	}
	row, err := strconv.Atoi(c.Params("row"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid row")
	}
	var values map[string]any
	if err := json.Unmarshal(c.Body(), &values); err != nil || len(values) == 0 {
		return errorJSON(c, http.StatusBadRequest, "body must be an object of field values")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.layer
	if row < 0 || row >= v.ShapeCount() {
		return errorJSON(c, http.StatusNotFound, layer.ErrOutOfRange.Error())
	}
	for name, val := range values {
		f, err := v.Table().Field(name)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		if _, err := table.Coerce(f.Type, val); err != nil {
			return errorJSON(c, http.StatusBadRequest, (&table.InvalidFieldValueError{Row: row, Field: name, Value: val, Err: err}).Error())
		}
	}
	warnings := []string{}
	for name, val := range values {
		if err := v.EditCellValue(row, name, val); err != nil {
			warnings = append(warnings, strings.Split(err.Error(), "\n")...)
		}
	}
	attrs := fiber.Map{}
	for _, f := range v.Table().Fields() {
		attrs[f.Name] = v.Table().Text(row, f.Name)
	}
	return c.JSON(fiber.Map{
		"row":         row,
		"attributes":  attrs,
		"legendIndex": v.Shapes()[row].LegendIndex,
		"warnings":    warnings,
	})
}
