package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerDeliversBroadcastToConnectedClient(t *testing.T) {
	ch := New(Options{HeartbeatMs: 60_000})
	srv := httptest.NewServer(http.HandlerFunc(ch.Handler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	waitForClientCount(t, ch, 1)
	ch.Broadcast(`{"type":"start"}`)

	reader := bufio.NewReader(resp.Body)
	var got string
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString() error = %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			got = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if !strings.Contains(got, `"type":"start"`) {
		t.Fatalf("got = %q, want the broadcast payload", got)
	}
}

func TestSendIncludesNamedEventAndID(t *testing.T) {
	ch := New(Options{HeartbeatMs: 60_000})
	srv := httptest.NewServer(http.HandlerFunc(ch.Handler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	waitForClientCount(t, ch, 1)
	ch.Send("progress", "stage1", "evt-1")

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString() error = %v", err)
		}
		lines = append(lines, line)
		if strings.TrimSpace(line) == "" && len(lines) > 1 {
			break
		}
	}
	joined := strings.Join(lines, "")
	if !strings.Contains(joined, "event: progress") || !strings.Contains(joined, "id: evt-1") {
		t.Fatalf("frame = %q, want event and id fields", joined)
	}
}

func TestHandlerRejectsConnectionsPastMaxClients(t *testing.T) {
	ch := New(Options{HeartbeatMs: 60_000, MaxClients: 1})
	srv := httptest.NewServer(http.HandlerFunc(ch.Handler))
	defer srv.Close()

	resp1, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp1.Body.Close()
	waitForClientCount(t, ch, 1)

	resp2, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp2.StatusCode)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	ch := New(Options{HeartbeatMs: 60_000})
	srv := httptest.NewServer(http.HandlerFunc(ch.Handler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	waitForClientCount(t, ch, 1)

	ch.Close()
	waitForClientCount(t, ch, 0)
}

func waitForClientCount(t *testing.T, ch *Channel, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount() never reached %d, last seen %d", want, ch.ClientCount())
}
