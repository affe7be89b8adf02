// Package dns resolves the relay host, falling back to public resolvers
// when the system resolver fails (captive DNS, broken resolv.conf).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout  = time.Second
	publicTimeout = 2 * time.Second
)

// publicResolvers are queried in parallel on port 53 when the local lookup
// fails. The first answer wins.
var publicResolvers = []string{
	"1.1.1.1", "1.0.0.1", "2606:4700:4700::1111", "2606:4700:4700::1001", // Cloudflare
	"8.8.8.8", "8.8.4.4", "2001:4860:4860::8888", "2001:4860:4860::8844", // Google
	"9.9.9.9", "149.112.112.112", "2620:fe::fe", "2620:fe::fe:9", // Quad9
	"8.26.56.26", "8.20.247.20", // Comodo
	"208.67.222.222", "208.67.220.220", "2620:119:35::35", "2620:119:53::53", // OpenDNS
}

var errNoAddress = errors.New("no addresses returned")

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	ip, err := resolve(lctx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}

	return racePublic(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials the
// result. It has the signature of websocket.Dialer.NetDialContext.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func racePublic(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	type answer struct {
		ip  string
		err error
	}
	answers := make(chan answer, len(publicResolvers))
	for _, server := range publicResolvers {
		go func() {
			ip, err := resolve(ctx, resolverFor(server), host)
			answers <- answer{ip, err}
		}()
	}

	for failed := 0; failed < len(publicResolvers); {
		select {
		case a := <-answers:
			if a.err == nil {
				return a.ip, nil
			}
			failed++
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public resolvers timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, len(publicResolvers))
}

// resolverFor returns a pure-Go resolver that only talks to server.
func resolverFor(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func resolve(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errNoAddress
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
