package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"dconn.dev/sitegen/internal/models"
)

var (
	// ErrMissingData is returned when a data file does not exist.
	ErrMissingData = errors.New("missing data file")

	// ErrMalformedData is returned when a data file cannot be parsed or
	// fails validation.
	ErrMalformedData = errors.New("malformed data file")
)

var dataValidate *validator.Validate

func init() {
	dataValidate = validator.New(validator.WithRequiredStructEnabled())

	// slugs become directory names under portfolio/
	_ = dataValidate.RegisterValidation("pathsegment", validatePathSegment)
}

func validatePathSegment(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && strings.TrimSpace(s) == s
}

// LoadProjects reads and validates the projects definition
func LoadProjects(path string) (*models.ProjectList, error) {
	var projects models.ProjectList
	if err := decodeFile(path, &projects); err != nil {
		return nil, err
	}
	if projects.Sections == nil {
		return nil, fmt.Errorf("%w: %s: no sections", ErrMalformedData, path)
	}
	if err := dataValidate.Struct(projects); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedData, path, err)
	}
	return &projects, nil
}

// LoadFilterTags reads and validates the filter-tags definition
func LoadFilterTags(path string) ([]models.FilterTag, error) {
	var tags []models.FilterTag
	if err := decodeFile(path, &tags); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(tags))
	for i, tag := range tags {
		if err := dataValidate.Struct(tag); err != nil {
			return nil, fmt.Errorf("%w: %s: tag %d: %w", ErrMalformedData, path, i, err)
		}
		if _, dup := seen[tag.Key]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate tag key %q", ErrMalformedData, path, tag.Key)
		}
		seen[tag.Key] = struct{}{}
	}
	return tags, nil
}

// decodeFile picks the decoder from the file extension
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingData, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	// exactly one document per file; anything after it is an error
	var decode, rest func() error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		decode = func() error { return dec.Decode(v) }
		rest = func() error {
			var extra yaml.Node
			return dec.Decode(&extra)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		decode = func() error { return dec.Decode(v) }
		rest = func() error {
			_, err := dec.Token()
			return err
		}
	}

	if err := decode(); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: empty document", ErrMalformedData, path)
		}
		return fmt.Errorf("%w: %s: %w", ErrMalformedData, path, err)
	}
	if err := rest(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: unexpected content after the first document", ErrMalformedData, path)
	}
	return nil
}
