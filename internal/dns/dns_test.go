package dns

import (
	"context"
	"net"
	"testing"
)

func TestLookupLiteral(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "::1"} {
		got, err := Lookup(context.Background(), addr)
		if err != nil || got != addr {
			t.Errorf("Lookup(%q) = %q, %v", addr, got, err)
		}
	}
}

func TestDialContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	conn, err := DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	if _, err := DialContext(context.Background(), "tcp", "no-port"); err == nil {
		t.Fatal("address without port accepted")
	}
}

func TestPublicResolversAreBareIPs(t *testing.T) {
	for _, server := range publicResolvers {
		if net.ParseIP(server) == nil {
			t.Errorf("%q is not a bare IP", server)
		}
	}
}
