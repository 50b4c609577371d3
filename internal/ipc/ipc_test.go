package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRunDispatchesRegisteredHandler(t *testing.T) {
	in := strings.NewReader(`{"id":1,"method":"services.status","params":{}}` + "\n")
	var out bytes.Buffer

	srv := NewServer(in, &out)
	srv.Register("services.status", func(params json.RawMessage) (any, error) {
		return map[string]string{"state": "running"}, nil
	})

	if err := srv.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
}

func TestRunReturnsUnknownMethodError(t *testing.T) {
	in := strings.NewReader(`{"id":2,"method":"nope.nope","params":{}}` + "\n")
	var out bytes.Buffer

	srv := NewServer(in, &out)
	if err := srv.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success || resp.Error != "unknown method" {
		t.Fatalf("expected unknown method error, got %+v", resp)
	}
}

func TestRunSurfacesHandlerError(t *testing.T) {
	in := strings.NewReader(`{"id":3,"method":"blocklist.add","params":{}}` + "\n")
	var out bytes.Buffer

	srv := NewServer(in, &out)
	srv.Register("blocklist.add", func(params json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	if err := srv.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success || resp.Error != "boom" {
		t.Fatalf("expected handler error surfaced, got %+v", resp)
	}
}

func TestRegisterGroupBindsFullDottedNames(t *testing.T) {
	srv := NewServer(strings.NewReader(""), &bytes.Buffer{})
	srv.RegisterGroup("services", map[string]Handler{
		"start": func(params json.RawMessage) (any, error) { return "started", nil },
		"stop":  func(params json.RawMessage) (any, error) { return "stopped", nil },
	})

	if _, ok := srv.handlers["services.start"]; !ok {
		t.Fatalf("expected services.start registered")
	}
	if _, ok := srv.handlers["services.stop"]; !ok {
		t.Fatalf("expected services.stop registered")
	}
}

func TestReadyEmitsHandshake(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(strings.NewReader(""), &out)
	if err := srv.Ready("0.1.0", []string{"capture", "hourly", "daily"}); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	scanner := bufio.NewScanner(&out)
	scanner.Scan()
	var msg readyMessage
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "ready" || msg.Version != "0.1.0" || len(msg.Services) != 3 {
		t.Fatalf("unexpected handshake: %+v", msg)
	}
}

func TestUnmarshalMalformedLineSkipped(t *testing.T) {
	in := strings.NewReader("not json\n" + `{"id":1,"method":"services.status","params":{}}` + "\n")
	var out bytes.Buffer
	srv := NewServer(in, &out)
	srv.Register("services.status", func(params json.RawMessage) (any, error) { return "ok", nil })

	if err := srv.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Only one valid response line should have been written.
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 response line, got %d: %v", len(lines), lines)
	}
}
