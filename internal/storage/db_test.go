package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"compsheet/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "comps.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUploadRoundTrip(t *testing.T) {
	db := openTestDB(t)

	table := internal.Table{
		Name:    "comps.csv",
		Source:  internal.SourceCSV,
		Headers: []string{"Address", "Sold Price"},
		Rows: []map[string]any{
			{"Address": "1 Main", "Sold Price": "$300,000"},
			{"Address": "2 Main", "Sold Price": 320000.5},
		},
	}
	id, err := db.InsertUpload(table, nil)
	if err != nil {
		t.Fatal(err)
	}

	upload, err := db.MustUpload(id)
	if err != nil {
		t.Fatal(err)
	}
	if upload.RowCount != 2 || upload.EmailID != nil || upload.Source != internal.SourceCSV {
		t.Fatalf("upload=%+v", upload)
	}

	got, err := db.UploadTable(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Rows) != 2 || got.Headers[1] != "Sold Price" {
		t.Fatalf("table=%+v", got)
	}
	if got.Rows[0]["Sold Price"] != "$300,000" {
		t.Fatalf("row0=%#v", got.Rows[0])
	}
	if got.Rows[1]["Sold Price"] != json.Number("320000.5") {
		t.Fatalf("row1=%#v", got.Rows[1])
	}

	missing, err := db.GetUpload(id + 100)
	if err != nil || missing != nil {
		t.Fatalf("missing=%v err=%v", missing, err)
	}
	if _, err := db.MustUpload(id + 100); err == nil {
		t.Fatal("expected not found")
	}
}

func TestLatestMapping(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertUpload(internal.Table{Name: "x", Source: internal.SourceCSV, Headers: []string{"Addr"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	none, err := db.LatestMapping(id)
	if err != nil || none != nil {
		t.Fatalf("none=%v err=%v", none, err)
	}

	suggested := internal.HeaderMapping{{Header: "Addr", Field: internal.FieldAddress}}
	if _, err := db.InsertMapping(id, internal.MappingSuggested, suggested); err != nil {
		t.Fatal(err)
	}
	edited := internal.HeaderMapping{{Header: "Addr", Field: ""}}
	editedID, err := db.InsertMapping(id, internal.MappingEdited, edited)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := db.LatestMapping(id)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != editedID || latest.Origin != internal.MappingEdited {
		t.Fatalf("latest=%+v", latest)
	}
	if len(latest.Mapping) != 1 || latest.Mapping[0].Field != "" {
		t.Fatalf("mapping=%+v", latest.Mapping)
	}
}

func TestReportRoundTrip(t *testing.T) {
	db := openTestDB(t)
	uploadID, err := db.InsertUpload(internal.Table{Name: "x", Source: internal.SourceCSV, Headers: []string{"Address"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mappingID, err := db.InsertMapping(uploadID, internal.MappingSuggested, internal.HeaderMapping{{Header: "Address", Field: internal.FieldAddress}})
	if err != nil {
		t.Fatal(err)
	}

	addr, sold := "1 Main", 300000.0
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(48 * time.Hour)
	report := internal.Report{
		ID:         "rep-1",
		UploadID:   uploadID,
		MappingID:  mappingID,
		Title:      "x",
		ShareToken: "tok-1",
		Comps:      []internal.Comp{{Address: &addr, SoldPrice: &sold}},
		Stats:      internal.MarketStats{Median: &sold},
		Dropped:    2,
		CreatedAt:  created,
		ExpiresAt:  &expires,
	}
	if err := db.InsertReport(report); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetReportByShareToken("tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "rep-1" || got.Dropped != 2 {
		t.Fatalf("report=%+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("times created=%v expires=%v", got.CreatedAt, got.ExpiresAt)
	}
	if len(got.Comps) != 1 || *got.Comps[0].SoldPrice != sold || got.Comps[0].Sqft != nil {
		t.Fatalf("comps=%+v", got.Comps)
	}
	if got.Stats.Median == nil || *got.Stats.Median != sold || got.Stats.AvgDOM != nil {
		t.Fatalf("stats=%+v", got.Stats)
	}

	if r, err := db.GetReportByShareToken("nope"); err != nil || r != nil {
		t.Fatalf("r=%v err=%v", r, err)
	}
	if _, err := db.MustReport("nope"); err == nil {
		t.Fatal("expected not found")
	}

	dup := report
	dup.ID = "rep-2"
	if err := db.InsertReport(dup); err == nil {
		t.Fatal("share tokens must be unique")
	}
}

func TestClearEmailUploads(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("imap", "<m1@example.com>", "Comps", "agent@example.com", "2026-03-01T00:00:00Z", "h", "/tmp/m1.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	emailID := email.ID
	uploadID, err := db.InsertUpload(internal.Table{Name: "a.csv", Source: internal.SourceEmail, Headers: []string{"Address"}, Rows: []map[string]any{{"Address": "1 Main"}}}, &emailID)
	if err != nil {
		t.Fatal(err)
	}
	mappingID, err := db.InsertMapping(uploadID, internal.MappingSuggested, internal.HeaderMapping{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InsertReport(internal.Report{ID: "r", UploadID: uploadID, MappingID: mappingID, ShareToken: "t", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	reports, err := db.ListReportsByEmail(emailID)
	if err != nil || len(reports) != 1 {
		t.Fatalf("reports=%d err=%v", len(reports), err)
	}

	if err := db.ClearEmailUploads(emailID); err != nil {
		t.Fatal(err)
	}
	uploads, err := db.ListUploadsByEmail(emailID)
	if err != nil || len(uploads) != 0 {
		t.Fatalf("uploads=%d err=%v", len(uploads), err)
	}
	if r, _ := db.GetReport("r"); r != nil {
		t.Fatal("report should be gone")
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	if v, err := db.GetMetadata("imap.lastUid"); err != nil || v != nil {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if err := db.SetMetadata("imap.lastUid", "41"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("imap.lastUid", "42"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("imap.lastUid")
	if err != nil || v == nil || *v != "42" {
		t.Fatalf("v=%v err=%v", v, err)
	}
}

func TestListUploadsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	var ids []int64
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		id, err := db.InsertUpload(internal.Table{Name: name, Source: internal.SourceCSV, Headers: []string{"Address"}}, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	got, err := db.ListUploads(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] || got[0].SourceName != "c.csv" {
		t.Fatalf("uploads=%+v", got)
	}
}
