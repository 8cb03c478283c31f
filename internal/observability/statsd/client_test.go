package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  cashier.api  ": "cashier.api",
		"..foo..":         "foo",
		".":               "",
		"":                "",
	}

	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/transition ": "job_transition",
		"pool..event":      "pool.event",
		"bad:name|x":       "bad_name_x",
		"multi  space":     "multi__space",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " cashier "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	got := formatTags(global, local)
	want := "|#env:stage,result:success,service:cashier"
	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen unavailable: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "cashier"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	if !client.Enabled() {
		t.Fatal("expected client to be enabled")
	}

	client.Count("job.transition", 1, map[string]string{"kind": "deposit"})

	buf := make([]byte, 512)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "cashier.job.transition:1|c|#kind:deposit" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestClientDisabledAndNil(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
	client.Gauge("pool.size", 3, nil)

	var nilClient *Client
	nilClient.Count("x", 1, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	r.Count("pool.event", 1, map[string]string{"event": "reused"})
	r.Count("pool.event", 2, map[string]string{"event": "reused"})
	r.Count("pool.event", 1, map[string]string{"event": "created"})
	r.Timing("pool.lock_wait", time.Millisecond, nil)

	if got := r.CountTotal("pool.event", map[string]string{"event": "reused"}); got != 3 {
		t.Fatalf("CountTotal = %d, want 3", got)
	}
	if got := len(r.Samples()); got != 4 {
		t.Fatalf("len(Samples) = %d, want 4", got)
	}
}
