package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"compsheet/internal"
)

func DetectInputType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv", ".txt":
		return "csv"
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	case ".eml":
		return "email"
	default:
		return ""
	}
}

// ExtractTables reads every table from a file. inputType "" or "auto" picks
// the type from the extension; sheet only applies to xlsx.
func ExtractTables(inputType, path, sheet string) ([]internal.Table, error) {
	if inputType == "" || inputType == "auto" {
		inputType = DetectInputType(path)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ExtractTablesFromBytes(inputType, filepath.Base(path), blob, sheet)
}

func ExtractTablesFromBytes(inputType, name string, blob []byte, sheet string) ([]internal.Table, error) {
	switch inputType {
	case "csv":
		t, err := ReadCSV(name, blob)
		if err != nil {
			return nil, err
		}
		return []internal.Table{t}, nil
	case "xlsx":
		t, err := ReadXLSX(name, blob, sheet)
		if err != nil {
			return nil, err
		}
		return []internal.Table{t}, nil
	case "html":
		return ReadHTMLTables(name, string(blob))
	case "pdf":
		t, err := ReadPDFTable(name, blob)
		if err != nil {
			return nil, err
		}
		return []internal.Table{t}, nil
	case "email":
		content, err := ExtractTablesFromEmail(blob)
		if err != nil {
			return nil, err
		}
		if len(content.Tables) == 0 {
			return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
		}
		return content.Tables, nil
	default:
		return nil, fmt.Errorf("%s (%q): %w", name, inputType, ErrUnsupportedInput)
	}
}
