package agent

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type serverPairingPending struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

type serverPairingApproved struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	ServerName string `json:"server_name,omitempty"`
}

type serverProtocolError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pairOutcome struct {
	result *PairResult
	err    error
}

func startPair(t *testing.T, opts PairOptions) (<-chan pairOutcome, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	outcome := make(chan pairOutcome, 1)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	go func() {
		result, err := Pair(ctx, opts, logger)
		outcome <- pairOutcome{result: result, err: err}
	}()

	return outcome, cancel
}

func waitForPair(t *testing.T, outcome <-chan pairOutcome) pairOutcome {
	t.Helper()
	select {
	case o := <-outcome:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("pairing did not finish")
		return pairOutcome{}
	}
}

func TestPair_Approved(t *testing.T) {
	ts := newWSTestServer(t)

	outcome, _ := startPair(t, PairOptions{ServerURL: ts.srv.URL, Name: "Stage Door Booth"})

	conn := ts.accept(t)
	defer conn.Close()

	var req pairingRequestFrame
	readAgentFrame(t, conn, &req)
	if req.Type != msgTypePairingRequest {
		t.Errorf("expected pairing_request, got %q", req.Type)
	}
	if req.ClientName != "Stage Door Booth" {
		t.Errorf("ClientName mismatch: got %q", req.ClientName)
	}
	if req.ProtocolVersion != "1" {
		t.Errorf("expected default protocol version 1, got %q", req.ProtocolVersion)
	}

	clientID := "55555555-5555-5555-5555-555555555555"
	writeServerFrame(t, conn, serverPairingPending{
		Type:     msgTypePairingPending,
		ClientID: clientID,
		Message:  "waiting for operator approval",
	})
	writeServerFrame(t, conn, serverPairingApproved{
		Type:       msgTypePairingApproved,
		Token:      "first-token",
		ServerName: "PROPS Theatre",
	})

	o := waitForPair(t, outcome)
	if o.err != nil {
		t.Fatalf("pair: %v", o.err)
	}
	if o.result.ClientID != clientID {
		t.Errorf("ClientID mismatch: got %q", o.result.ClientID)
	}
	if o.result.Token != "first-token" {
		t.Errorf("Token mismatch: got %q", o.result.Token)
	}
	if o.result.ServerName != "PROPS Theatre" {
		t.Errorf("ServerName mismatch: got %q", o.result.ServerName)
	}
}

func TestPair_DeclaredProtocolVersion(t *testing.T) {
	ts := newWSTestServer(t)

	outcome, cancel := startPair(t, PairOptions{
		ServerURL:       ts.srv.URL,
		Name:            "Booth",
		ProtocolVersion: "2",
	})

	conn := ts.accept(t)
	defer conn.Close()

	var req pairingRequestFrame
	readAgentFrame(t, conn, &req)
	if req.ProtocolVersion != "2" {
		t.Errorf("expected declared protocol version 2, got %q", req.ProtocolVersion)
	}

	cancel()
	waitForPair(t, outcome)
}

func TestPair_Denied(t *testing.T) {
	ts := newWSTestServer(t)

	outcome, _ := startPair(t, PairOptions{ServerURL: ts.srv.URL, Name: "Booth"})

	conn := ts.accept(t)
	defer conn.Close()

	var req pairingRequestFrame
	readAgentFrame(t, conn, &req)

	writeServerFrame(t, conn, serverPairingPending{Type: msgTypePairingPending, ClientID: "id"})
	writeServerFrame(t, conn, map[string]string{"type": msgTypePairingDenied})

	o := waitForPair(t, outcome)
	if o.err == nil {
		t.Fatal("expected error for denied pairing")
	}
	if !strings.Contains(o.err.Error(), "denied") {
		t.Errorf("error should say denied, got %v", o.err)
	}
}

func TestPair_ServerError(t *testing.T) {
	ts := newWSTestServer(t)

	outcome, _ := startPair(t, PairOptions{ServerURL: ts.srv.URL, Name: "Booth"})

	conn := ts.accept(t)
	defer conn.Close()

	var req pairingRequestFrame
	readAgentFrame(t, conn, &req)

	writeServerFrame(t, conn, serverProtocolError{
		Type:    msgTypeError,
		Code:    "version_mismatch",
		Message: "unsupported protocol version",
	})

	o := waitForPair(t, outcome)
	if o.err == nil {
		t.Fatal("expected error from server rejection")
	}
	if !strings.Contains(o.err.Error(), "unsupported protocol version") {
		t.Errorf("error should carry the server message, got %v", o.err)
	}
}

func TestPair_Canceled(t *testing.T) {
	ts := newWSTestServer(t)

	outcome, cancel := startPair(t, PairOptions{ServerURL: ts.srv.URL, Name: "Booth"})

	conn := ts.accept(t)
	defer conn.Close()

	var req pairingRequestFrame
	readAgentFrame(t, conn, &req)

	// No approval ever comes; the operator gave up.
	cancel()

	o := waitForPair(t, outcome)
	if o.err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(o.err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", o.err)
	}
}

func TestPair_BadServerURL(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	_, err := Pair(context.Background(), PairOptions{ServerURL: "ftp://nope", Name: "Booth"}, logger)
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
