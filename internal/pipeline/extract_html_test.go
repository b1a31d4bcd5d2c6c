package pipeline

import (
	"errors"
	"testing"
)

func TestReadHTMLTables(t *testing.T) {
	html := `<p>Comps below</p>
<table><tr><td>only header</td></tr></table>
<table>
<tr><th>Address</th><th>Close Price</th><th>Living Area</th></tr>
<tr><td> 4 Birch  Ln </td><td>$505,000</td><td>2,020</td></tr>
</table>`
	tables, err := ReadHTMLTables("export.html", html)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 {
		t.Fatalf("len=%d", len(tables))
	}
	if tables[0].Name != "export.html#2" {
		t.Fatalf("name=%q", tables[0].Name)
	}
	row := tables[0].Rows[0]
	if row["Address"] != "4 Birch Ln" || row["Close Price"] != "$505,000" {
		t.Fatalf("row=%#v", row)
	}
}

func TestReadHTMLTablesNone(t *testing.T) {
	_, err := ReadHTMLTables("empty.html", "<p>no tables</p>")
	if !errors.Is(err, ErrNoTable) {
		t.Fatalf("err=%v", err)
	}
}
