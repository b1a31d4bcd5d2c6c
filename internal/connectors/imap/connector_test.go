package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func TestNewestIDs(t *testing.T) {
	ids := []uint32{3, 5, 8, 13}
	if got := newestIDs(ids, 2); len(got) != 2 || got[0] != 8 {
		t.Fatalf("got=%v", got)
	}
	if got := newestIDs(ids, 0); len(got) != 4 {
		t.Fatalf("got=%v", got)
	}
}

func TestToFetched(t *testing.T) {
	msg := &imap.Message{
		Uid:          42,
		InternalDate: time.Date(2026, 4, 2, 10, 0, 0, 0, time.FixedZone("EST", -5*3600)),
		Envelope: &imap.Envelope{
			Subject: "Comps: 12 Elm",
			From:    []*imap.Address{{PersonalName: "Dana Agent", MailboxName: "dana", HostName: "realty.example"}, nil},
		},
	}
	got := toFetched(msg, []byte("raw"))
	if got.MessageID != "imap-42" || got.From != "Dana Agent <dana@realty.example>" {
		t.Fatalf("got=%+v", got)
	}
	if got.ReceivedAt != "2026-04-02T15:00:00Z" {
		t.Fatalf("received=%q", got.ReceivedAt)
	}
}
