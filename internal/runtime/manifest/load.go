package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/jsoncodec"
)

// Format is the encoding of a manifest document.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DefaultFile is the manifest file name used when none is configured.
const DefaultFile = "event-config.json"

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %s", errspkg.ErrUnsupportedManifest, path)
}

// Load reads the manifest at path, drops disabled entries and validates the
// rest. The returned manifest contains only enabled entries.
func Load(path string) (Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Manifest{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f, format)
}

// Parse decodes and validates a manifest from r.
func Parse(r io.Reader, format Format) (Manifest, error) {
	m, err := Decode(r, format)
	if err != nil {
		return Manifest{}, err
	}
	enabled := m.Enabled()
	if err := Validate(enabled); err != nil {
		return Manifest{}, err
	}
	return enabled, nil
}

// Decode only deserializes; unknown keys are rejected.
func Decode(r io.Reader, format Format) (Manifest, error) {
	var m Manifest
	switch format {
	case FormatJSON:
		if err := jsoncodec.DecodeStrict(r, &m); err != nil {
			return Manifest{}, fmt.Errorf("decode json manifest: %w", err)
		}
	case FormatTOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&m); err != nil {
			return Manifest{}, fmt.Errorf("decode toml manifest: %w", err)
		}
	default:
		return Manifest{}, fmt.Errorf("%w: %q", errspkg.ErrUnsupportedManifest, format)
	}
	return m, nil
}
