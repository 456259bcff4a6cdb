package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"
)

func capturingAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditorHashesUserID(t *testing.T) {
	auditor, buf := capturingAuditor(true)

	auditor.LogTokenIssued("alice@example.com", "client-1", "user")

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Fatal("raw user ID leaked into audit log")
	}

	sum := sha256.Sum256([]byte("alice@example.com"))
	wantHash := hex.EncodeToString(sum[:])[:16]
	if !strings.Contains(out, wantHash) {
		t.Errorf("log missing user ID hash %q: %s", wantHash, out)
	}
	if !strings.Contains(out, "security_audit") {
		t.Errorf("log missing audit marker: %s", out)
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("log missing event type: %s", out)
	}
	// Client IDs are not PII and stay readable.
	if !strings.Contains(out, "client-1") {
		t.Errorf("log missing client ID: %s", out)
	}
}

func TestAuditorEmptyFieldsMarked(t *testing.T) {
	auditor, buf := capturingAuditor(true)

	auditor.LogTokenRevoked("client-1", "access_token")

	if !strings.Contains(buf.String(), "<empty>") {
		t.Errorf("empty user ID not marked: %s", buf.String())
	}
}

func TestAuditorDisabledLogsNothing(t *testing.T) {
	auditor, buf := capturingAuditor(false)

	auditor.LogAuthFailure("alice", "client-1", "bad secret")
	auditor.LogSessionExpired("session-1")

	if buf.Len() != 0 {
		t.Fatalf("disabled auditor wrote: %s", buf.String())
	}
}

func TestAuditorNilSafe(t *testing.T) {
	var auditor *Auditor
	auditor.LogEvent(Event{Type: EventAuthFailure})
	auditor.LogAuthFailure("alice", "client-1", "reason")
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q", got)
	}
	a := hashForLogging("alice")
	b := hashForLogging("alice")
	if a != b {
		t.Errorf("hash not deterministic: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if a == hashForLogging("bob") {
		t.Error("distinct inputs hashed equal")
	}
}
