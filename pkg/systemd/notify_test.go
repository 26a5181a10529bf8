package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"blinkbrain/pkg/logx"
)

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	if sent || err != nil {
		t.Fatalf("Ready() = %v, %v; want false, nil", sent, err)
	}
	t.Setenv("WATCHDOG_USEC", "")
	if err := Watchdog(context.Background(), logx.Nop()); err != nil {
		t.Fatalf("Watchdog() = %v", err)
	}
}

func TestNotifySendsState(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	tests := []struct {
		name string
		call func() (bool, error)
		want string
	}{
		{"ready", Ready, "READY=1"},
		{"status", func() (bool, error) { return Status("3 reminders armed") }, "STATUS=3 reminders armed"},
		{"stopping", Stopping, "STOPPING=1"},
	}
	buf := make([]byte, 256)
	for _, tt := range tests {
		sent, err := tt.call()
		if !sent || err != nil {
			t.Fatalf("%s: sent=%v err=%v", tt.name, sent, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("%s: read: %v", tt.name, err)
		}
		if got := string(buf[:n]); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
