package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestRoundTripEveryRequestType(t *testing.T) {
	reqs := []Envelope{
		NewPing(),
		NewCreateSession("feat/x", "claude", "/repo", "note"),
		NewDestroySession("feat/x", true),
		NewListSessions(),
		NewAttach("feat/x", "sub-1"),
		NewWriteStdin("spawn-1", []byte("hello\n")),
		NewResizePty("spawn-1", 80, 24),
		NewDetach("spawn-1", "sub-1"),
		NewShutdown(),
		NewStopSession("feat/x"),
		NewCompleteSession("feat/x", true),
		NewOpenSession("feat/x", "claude", "/repo"),
		NewIsRunning("spawn-1"),
	}

	for _, req := range reqs {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		if err := w.WriteEnvelope(req); err != nil {
			t.Fatalf("WriteEnvelope(%s): %v", req.Type, err)
		}
		r := NewReader(&buf)
		got, err := r.ReadEnvelope()
		if err != nil {
			t.Fatalf("ReadEnvelope(%s): %v", req.Type, err)
		}
		if got.Type != req.Type {
			t.Fatalf("Type = %q, want %q", got.Type, req.Type)
		}
		if got.ID == "" {
			t.Fatalf("%s: missing correlation id", req.Type)
		}
	}
}

func TestWriteStdinRoundTripsBinaryPayload(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xff, '\n', 0x80}
	req := NewWriteStdin("spawn-1", payload)

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteEnvelope(req); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	got, err := NewReader(&buf).ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	decoded, err := got.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("Data() = %v, want %v", decoded, payload)
	}
}

func TestResponseTypesRoundTrip(t *testing.T) {
	exit := 0
	resps := []Envelope{
		{Type: TypeAck, ID: "1"},
		{Type: TypeSessionList, ID: "2", Sessions: []SessionSummary{{ID: "p/b", Branch: "b", Status: "active"}}},
		{Type: TypePtyOutput, ID: "3", SpawnID: "s1", DataB64: "aGVsbG8="},
		{Type: TypePtyExit, ID: "4", SpawnID: "s1", ExitCode: &exit},
		{Type: TypeSessionChanged, ID: "5"},
	}
	for _, resp := range resps {
		var buf bytes.Buffer
		if err := NewWriter(&buf).WriteEnvelope(resp); err != nil {
			t.Fatalf("WriteEnvelope(%s): %v", resp.Type, err)
		}
		got, err := NewReader(&buf).ReadEnvelope()
		if err != nil {
			t.Fatalf("ReadEnvelope(%s): %v", resp.Type, err)
		}
		if got.Type != resp.Type {
			t.Fatalf("Type = %q, want %q", got.Type, resp.Type)
		}
	}
}

func TestErrorFrameMapsToTypedError(t *testing.T) {
	wireErr := NewError(CodeSessionNotFound, "no such session")
	env := errorEnvelope("req-1", wireErr)

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteEnvelope(env); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	got, err := NewReader(&buf).ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}

	mapped := AsError(got)
	if mapped == nil {
		t.Fatal("AsError returned nil for an error frame")
	}
	if mapped.Code() != string(CodeSessionNotFound) {
		t.Fatalf("Code() = %q, want %q", mapped.Code(), CodeSessionNotFound)
	}
}

func TestClientSendReturnsTypedErrorOnErrorFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := NewReader(server)
		req, err := r.ReadEnvelope()
		if err != nil {
			return
		}
		if req.Type != TypeDestroySession {
			return
		}
		_ = NewWriter(server).WriteEnvelope(errorEnvelope(req.ID, NewError(CodeUncommittedChanges, "dirty worktree")))
	}()

	c := NewClient(client)
	_, err := c.Send(NewDestroySession("feat/x", false))
	<-done
	if err == nil {
		t.Fatal("expected an error")
	}
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if perr.Code() != string(CodeUncommittedChanges) {
		t.Fatalf("Code() = %q, want %q", perr.Code(), CodeUncommittedChanges)
	}
}

func TestClientSendReturnsAckOnSuccess(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		r := NewReader(server)
		req, err := r.ReadEnvelope()
		if err != nil {
			return
		}
		_ = NewWriter(server).WriteEnvelope(Envelope{Type: TypeAck, ID: req.ID})
	}()

	c := NewClient(client)
	resp, err := c.Send(NewPing())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Type != TypeAck {
		t.Fatalf("Type = %q, want ack", resp.Type)
	}
}

func TestClientProbeDetectsClosedConnection(t *testing.T) {
	server, client := net.Pipe()
	c := NewClient(client)
	_ = server.Close()
	_ = client.SetDeadline(time.Now().Add(time.Second))
	if c.Probe() {
		t.Fatal("Probe() = true for a closed connection")
	}
}
