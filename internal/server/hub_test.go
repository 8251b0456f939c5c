package server

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/mgpai22/chitra/internal/logging/logtest"
	"github.com/mgpai22/chitra/internal/session"
)

func TestPushKeepsLatestSnapshot(t *testing.T) {
	c := &wsConnection{
		sessionID: "s1",
		send:      make(chan []byte, 1),
		done:      make(chan struct{}),
		server:    &Server{logger: logtest.New(t)},
	}

	for v := uint64(1); v <= 64; v++ {
		c.push(session.Snapshot{
			Version: v,
			Status:  session.Status{Stage: session.StageEnriching, Current: int(v), Total: 100},
		})
	}
	c.push(session.Snapshot{Version: 65, Status: session.Status{Stage: session.StageComplete}})

	if n := len(c.send); n != 1 {
		t.Fatalf("queued %d messages, want 1", n)
	}
	var got session.Snapshot
	if err := json.Unmarshal(<-c.send, &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != 65 || got.Status.Stage != session.StageComplete {
		t.Errorf("queued snapshot = version %d stage %s, want 65 complete", got.Version, got.Status.Stage)
	}
}

func TestPushAfterDoneReturns(t *testing.T) {
	c := &wsConnection{
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		server: &Server{logger: logtest.New(t)},
	}
	c.send <- []byte("{}")
	close(c.done)

	c.push(session.Snapshot{Version: 2})
}

func TestCloseEntryRemovesUploadsAndRejectsNew(t *testing.T) {
	s := New(func(id string) *session.Session {
		return session.New(session.Services{}, session.WithID(id))
	}, session.Catalog{}, WithUploadRoot(t.TempDir()), WithLogger(logtest.New(t)))
	e := &entry{session: s.factory("s1")}

	dir, err := s.uploadDir(e)
	if err != nil {
		t.Fatalf("uploadDir() error = %v", err)
	}
	s.closeEntry(e)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("upload dir still exists: %v", err)
	}
	if _, err := s.uploadDir(e); !errors.Is(err, session.ErrClosed) {
		t.Errorf("uploadDir() after close error = %v, want ErrClosed", err)
	}
}
