package trackerclient

import (
	"errors"
	"testing"
)

func TestNewRejectsUnsupportedScheme(t *testing.T) {
	_, err := New("ftp://example.com/announce")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("got %v, want ErrUnsupportedScheme", err)
	}
}

func TestNewDispatchesHTTPAndUDP(t *testing.T) {
	if _, err := New("http://example.com/announce"); err != nil {
		t.Fatalf("http: %v", err)
	}
	if _, err := New("udp://example.com:80/announce"); err != nil {
		t.Fatalf("udp: %v", err)
	}
}
