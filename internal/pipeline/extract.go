package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"compsheet/internal"
	"compsheet/internal/util"
)

var rePDFCellGap = regexp.MustCompile(`\t+|\s{2,}`)

// ReadCSV parses a delimited export. UTF-8/UTF-16 BOMs are honored and
// non-UTF-8 bytes are read as Windows-1252, which is what most MLS systems
// emit. The delimiter is sniffed from the first line.
func ReadCSV(name string, content []byte) (internal.Table, error) {
	text, err := decodeText(content)
	if err != nil {
		return internal.Table{}, fmt.Errorf("decode %s: %w", name, err)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var grid [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return internal.Table{}, fmt.Errorf("parse %s: %w", name, err)
		}
		grid = append(grid, rec)
	}
	return tableFromGrid(name, internal.SourceCSV, "", grid)
}

func ReadXLSX(name string, content []byte, sheet string) (internal.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.Table{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if sheet != "" {
		found := false
		for _, s := range sheets {
			if s == sheet {
				found = true
				break
			}
		}
		if !found {
			return internal.Table{}, fmt.Errorf("%s: sheet %q not found (have %s)", name, sheet, strings.Join(sheets, ", "))
		}
		sheets = []string{sheet}
	}

	for _, s := range sheets {
		rows, err := f.GetRows(s, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		table, err := tableFromGrid(name, internal.SourceXLSX, s, rows)
		if errors.Is(err, ErrNoTable) {
			continue
		}
		return table, err
	}
	return internal.Table{}, fmt.Errorf("%s: %w", name, ErrNoTable)
}

func ReadHTMLTables(name, html string) ([]internal.Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	out := []internal.Table{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		grid := make([][]string, 0, rows.Length())
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			grid = append(grid, cells)
		})
		tableName := name
		if i > 0 {
			tableName = fmt.Sprintf("%s#%d", name, i+1)
		}
		t, err := tableFromGrid(tableName, internal.SourceHTML, "", grid)
		if err != nil || len(t.Rows) == 0 {
			return
		}
		out = append(out, t)
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoTable)
	}
	return out, nil
}

// ReadPDFTable recovers a table from a text PDF by splitting each line on
// tabs or runs of two or more spaces. Repeated header lines on later pages
// are skipped.
func ReadPDFTable(name string, content []byte) (internal.Table, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return internal.Table{}, fmt.Errorf("open %s: %w", name, err)
	}

	var grid [][]string
	headerKey := ""
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			cells := rePDFCellGap.Split(line, -1)
			if len(cells) < 2 {
				continue
			}
			key := strings.Join(cells, "|")
			if headerKey == "" {
				headerKey = key
			} else if key == headerKey {
				continue
			}
			grid = append(grid, cells)
		}
	}
	return tableFromGrid(name, internal.SourcePDF, "", grid)
}

type EmailContent struct {
	Subject         string
	Text            string
	AttachmentNames []string
	Tables          []internal.Table
}

// ExtractTablesFromEmail collects tables from spreadsheet, PDF and HTML
// attachments and from tables in the HTML body. Unreadable attachments are
// skipped.
func ExtractTablesFromEmail(raw []byte) (EmailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailContent{}, err
	}

	out := EmailContent{Subject: env.GetHeader("Subject"), Text: env.Text}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.AttachmentNames = append(out.AttachmentNames, filename)

		tables, err := readAttachment(filename, att.Content)
		if err != nil {
			continue
		}
		for i := range tables {
			tables[i].Source = internal.SourceEmail
		}
		out.Tables = append(out.Tables, tables...)
	}

	if env.HTML != "" {
		if tables, err := ReadHTMLTables("message body", env.HTML); err == nil {
			for i := range tables {
				tables[i].Source = internal.SourceEmail
			}
			out.Tables = append(out.Tables, tables...)
		}
	}
	return out, nil
}

func readAttachment(filename string, content []byte) ([]internal.Table, error) {
	inputType := DetectInputType(filename)
	if inputType == "email" {
		return nil, fmt.Errorf("%s: nested message: %w", filename, ErrUnsupportedInput)
	}
	return ExtractTablesFromBytes(inputType, filename, content, "")
}

// tableFromGrid turns raw cells into a Table. The first non-empty row is the
// header row; blank headers become "Column N" and repeated headers get a
// numeric suffix so every header keys its own cell.
func tableFromGrid(name string, source internal.TableSource, sheet string, grid [][]string) (internal.Table, error) {
	headerIdx := -1
	for i, row := range grid {
		if !isBlankRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return internal.Table{}, fmt.Errorf("%s: %w", name, ErrNoTable)
	}

	headers := uniqueHeaders(grid[headerIdx])
	rows := make([]map[string]any, 0, len(grid)-headerIdx-1)
	for _, raw := range grid[headerIdx+1:] {
		if isBlankRow(raw) {
			continue
		}
		row := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(raw) {
				row[h] = strings.TrimSpace(raw[i])
			}
		}
		rows = append(rows, row)
	}

	return internal.Table{Name: name, Source: source, Sheet: sheet, Headers: headers, Rows: rows}, nil
}

func uniqueHeaders(raw []string) []string {
	seen := map[string]int{}
	out := make([]string, 0, len(raw))
	for i, h := range raw {
		h = util.NormalizeSpaces(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		base := h
		for seen[h] > 0 {
			h = fmt.Sprintf("%s_%d", base, seen[base])
			seen[base]++
		}
		seen[h]++
		out = append(out, h)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func decodeText(content []byte) (string, error) {
	if bytes.HasPrefix(content, []byte{0xFF, 0xFE}) || bytes.HasPrefix(content, []byte{0xFE, 0xFF}) {
		decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), content)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(content) {
		return string(content), nil
	}
	latin, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), content)
	if err != nil {
		return "", err
	}
	return string(latin), nil
}

func sniffDelimiter(text string) rune {
	first := text
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		first = text[:idx]
	}
	best, bestCount := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t', '|'} {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
