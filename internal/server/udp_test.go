package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestUDPReceiverStreamsPackets(t *testing.T) {
	r := NewUDPReceiver(UDPConfig{Address: "127.0.0.1:0"}, testLogger(), nil)
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Close()

	conn, err := net.Dial("udp", r.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	packets := [][]byte{{1, 2, 3}, {4, 5}, {6, 7, 8, 9}}
	for _, p := range packets {
		if _, err := conn.Write(p); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	got := make([]byte, 0, 9)
	buf := make([]byte, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(got) < 9 {
			n, err := r.Read(buf)
			if err != nil {
				return
			}
			got = append(got, buf[:n]...)
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for packets")
	}

	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Errorf("Expected concatenated packet bytes, got %v", got)
	}

	stats := r.GetStatistics()
	if stats.PacketsReceived != 3 || stats.BytesReceived != 9 {
		t.Errorf("Unexpected statistics %+v", stats)
	}
}

func TestUDPReceiverCloseEndsStream(t *testing.T) {
	r := NewUDPReceiver(UDPConfig{Address: "127.0.0.1:0"}, testLogger(), nil)
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 16))
		errCh <- err
	}()

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Expected io.EOF after close, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Read did not return after Close")
	}

	if err := r.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestUDPReceiverInvalidAddress(t *testing.T) {
	r := NewUDPReceiver(UDPConfig{Address: "not-an-address"}, testLogger(), nil)
	if err := r.Start(); err == nil {
		r.Close()
		t.Fatal("Expected error for invalid address")
	}
}
