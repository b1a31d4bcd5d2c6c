package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"compsheet/internal"
	"compsheet/internal/config"
	"compsheet/internal/connectors"
	"compsheet/internal/storage"
)

type stubConnector []internal.FetchedMailMessage

func (s stubConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	return s, nil
}

type recordingWriter struct{ ids []string }

func (w *recordingWriter) Write(r internal.Report) error {
	w.ids = append(w.ids, r.ID)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

const compsMessage = "From: agent@example.com\r\n" +
	"Message-ID: <elm-1@example.com>\r\n" +
	"Subject: Sold comps for 12 Elm\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"xx\"\r\n" +
	"\r\n" +
	"--xx\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"CMA attached.\r\n" +
	"--xx\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"elm.csv\"\r\n" +
	"\r\n" +
	"Address,Close Price,Living Area\r\n" +
	"1 Main,300000,1500\r\n" +
	"--xx--\r\n"

func TestRunCycleFetchesProcessesAndExports(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "comps.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Config{
		RawMailDir:               filepath.Join(tmp, "raw"),
		OutputDir:                filepath.Join(tmp, "out"),
		MailListenerProvider:     "imap",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
	}
	writer := &recordingWriter{}
	svc := NewService(db, cfg, nil).WithPublisher(writer)
	svc.makeConnector = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return stubConnector{{Provider: "imap", MessageID: "<elm-1@example.com>", Subject: "Sold comps for 12 Elm", Raw: []byte(compsMessage)}}, nil
	}

	res, err := svc.runCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 1 || res.Processed != 1 || res.Reports != 1 || res.Exported != 1 {
		t.Fatalf("res=%+v", res)
	}
	if len(writer.ids) != 1 {
		t.Fatalf("published=%v", writer.ids)
	}

	entries, err := os.ReadDir(filepath.Join(tmp, "out", "listener"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%d err=%v", len(entries), err)
	}
	if entries[0].Name() != "1__elm-1_example.com__1.xlsx" {
		t.Fatalf("name=%q", entries[0].Name())
	}

	// a second cycle sees the same message but has nothing new to export
	res, err = svc.runCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.New != 0 || res.Processed != 0 || res.Exported != 0 {
		t.Fatalf("second=%+v", res)
	}
}

func TestUnsupportedProvider(t *testing.T) {
	svc := NewService(nil, config.Config{MailListenerProvider: "pop3"}, nil)
	if err := svc.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
