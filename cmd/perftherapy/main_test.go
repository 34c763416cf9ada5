package main

import (
	"testing"
	"time"
)

func TestWSURLFor(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/v1/therapy/ws"},
		{"https://therapy.example.com", "wss://therapy.example.com/v1/therapy/ws"},
		{"http://host:8080/prefix/", "ws://host:8080/prefix/v1/therapy/ws"},
	}
	for _, tc := range cases {
		got, err := wsURLFor(tc.base)
		if err != nil {
			t.Fatalf("wsURLFor(%q) error = %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("wsURLFor(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestWSURLForRejectsBadScheme(t *testing.T) {
	if _, err := wsURLFor("ftp://host"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestAwaitReplyTimeout(t *testing.T) {
	replyCh := make(chan string)
	readErrCh := make(chan error)
	start := time.Now()
	err := awaitReply(replyCh, readErrCh, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestAwaitReplyReceives(t *testing.T) {
	replyCh := make(chan string, 1)
	replyCh <- "halo"
	if err := awaitReply(replyCh, make(chan error), time.Second); err != nil {
		t.Fatalf("awaitReply() error = %v", err)
	}
}
