package termio

import (
	"os/exec"
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func TestForkWriteRead(t *testing.T) {
	child, err := Fork(exec.Command("cat"), &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	defer child.Master.Close()
	defer unix.Kill(-child.Pid, unix.SIGKILL)

	if child.Pid <= 0 {
		t.Fatalf("expected positive pid, got %d", child.Pid)
	}
	if child.Fd() < 0 {
		t.Fatalf("expected valid fd, got %d", child.Fd())
	}

	if err := Write(child, []byte("ping\r")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for time.Now().Before(deadline) && len(got) < len("ping\r\n") {
		rr, rerr := Read(child, buf)
		if rerr != nil {
			t.Fatalf("read: %v", rerr)
		}
		if rr.EOF {
			t.Fatal("unexpected EOF")
		}
		got = append(got, rr.Data...)
	}
	if string(got) != "ping\r\n" {
		t.Fatalf("expected echoed %q, got %q", "ping\r\n", got)
	}
}

func TestForkEOFAfterExit(t *testing.T) {
	child, err := Fork(exec.Command("true"), nil)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	defer child.Master.Close()

	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rr, rerr := Read(child, buf)
		if rerr != nil {
			t.Fatalf("read: %v", rerr)
		}
		if rr.EOF {
			return
		}
	}
	t.Fatal("never observed EOF after child exit")
}

func TestSetsize(t *testing.T) {
	child, err := Fork(exec.Command("cat"), nil)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	defer child.Master.Close()
	defer unix.Kill(-child.Pid, unix.SIGKILL)

	if err := Setsize(child, 100, 40); err != nil {
		t.Fatalf("setsize: %v", err)
	}
}
