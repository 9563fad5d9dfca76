package adapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	m "strata.dev/pkg/strata/internal/model"
)

// descriptionValidate checks decoded descriptions before the graph is built.
var descriptionValidate *validator.Validate

func init() {
	descriptionValidate = validator.New()

	_ = descriptionValidate.RegisterValidation("nodekind", validateNodeKind)
	descriptionValidate.RegisterStructValidation(validateDepotData, m.NodeDescriptor{})
}

func validateNodeKind(fl validator.FieldLevel) bool {
	_, err := m.ParseKind(fl.Field().String())
	return err == nil
}

// validateDepotData requires depot entries to carry distribution ids. Mods may
// carry a data object; it is ignored.
func validateDepotData(sl validator.StructLevel) {
	node, ok := sl.Current().Interface().(m.NodeDescriptor)
	if !ok || node.Kind != string(m.KindDepot) {
		return
	}

	if node.Data == nil {
		sl.ReportError(node.Data, "Data", "data", "depotdata", "")
		return
	}

	if node.Data.AppID <= 0 {
		sl.ReportError(node.Data.AppID, "Data.AppID", "appId", "gt", "0")
	}

	if node.Data.DepotID <= 0 {
		sl.ReportError(node.Data.DepotID, "Data.DepotID", "depotId", "gt", "0")
	}
}

// DescriptionReader loads node-graph description files.
type DescriptionReader interface {
	// Read decodes and validates the description at path. The format is
	// chosen by extension: .yaml and .yml are YAML, everything else JSON.
	Read(path m.Path) (m.Description, error)
}

// LocalDescriptionReader reads descriptions from disk.
type LocalDescriptionReader struct{}

// NewLocalDescriptionReader constructs a LocalDescriptionReader.
func NewLocalDescriptionReader() *LocalDescriptionReader {
	return &LocalDescriptionReader{}
}

// Read implements DescriptionReader.
func (r *LocalDescriptionReader) Read(path m.Path) (m.Description, error) {
	// #nosec G304 - description paths are chosen by the operator
	data, err := os.ReadFile(string(path))
	if err != nil {
		return m.Description{}, fmt.Errorf("read description %s: %w", path, err)
	}

	desc, err := DecodeDescription(data, filepath.Ext(string(path)))
	if err != nil {
		return m.Description{}, fmt.Errorf("description %s: %w", path, err)
	}

	return desc, nil
}

// DecodeDescription decodes and validates description bytes. ext selects
// the format the same way Read does.
func DecodeDescription(data []byte, ext string) (m.Description, error) {
	var desc m.Description

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return m.Description{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		// The original tooling writes UTF-8 with a byte order mark.
		data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

		if err := json.Unmarshal(data, &desc); err != nil {
			return m.Description{}, fmt.Errorf("decode json: %w", err)
		}
	}

	if err := descriptionValidate.Struct(desc); err != nil {
		return m.Description{}, describeValidation(err)
	}

	return desc, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	msgs := make([]string, 0, len(verrs))

	for _, fe := range verrs {
		switch fe.Tag() {
		case "nodekind":
			msgs = append(msgs, fmt.Sprintf("%s: unknown node kind %q", fe.Namespace(), fe.Value()))
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: missing", fe.Namespace()))
		case "depotdata":
			msgs = append(msgs, fmt.Sprintf("%s: depot nodes need appId and depotId", fe.Namespace()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}

	return fmt.Errorf("invalid description: %s", strings.Join(msgs, "; "))
}
