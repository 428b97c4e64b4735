package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dashnorm/internal"
)

// ExtractTableFromInput loads a parent table from a file of the given type.
func ExtractTableFromInput(inputType string, path string) (*internal.Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ExtractTableFromBytes(inputType, filepath.Base(path), blob)
}

func ExtractTableFromBytes(inputType string, name string, blob []byte) (*internal.Table, error) {
	switch internal.InputType(strings.ToLower(strings.TrimSpace(inputType))) {
	case internal.InputCSV:
		return parseCSV(name, strings.NewReader(string(blob)))
	case internal.InputXLSX:
		return parseXLSX(name, blob)
	case internal.InputHTML:
		return parseHTMLTable(name, string(blob))
	case internal.InputEML:
		return parseEML(name, blob)
	default:
		return nil, fmt.Errorf("%w: unsupported input type: %s", ErrInvalidArgument, inputType)
	}
}

// InputTypeFromPath guesses the input type from a file extension.
func InputTypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return string(internal.InputXLSX)
	case ".html", ".htm":
		return string(internal.InputHTML)
	case ".eml":
		return string(internal.InputEML)
	default:
		return string(internal.InputCSV)
	}
}
