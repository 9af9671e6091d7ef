// Package mdns announces radiometryd on the local network and finds running
// instances over DNS-SD.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// DNS-SD service type and domain radiometryd registers under.
const (
	Service = "_radiometry._tcp"
	Domain  = "local."
)

// Host represents a discovered radiometryd instance.
type Host struct {
	Instance  string // Advertised name: "radiometryd on lab-01"
	Hostname  string // DNS hostname: "lab-01.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URL returns the base URL of the first advertised address.
func (h Host) URL() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	if len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(h.Port))
}

// PortFromAddr extracts the numeric port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("listen address %q: invalid port %q", addr, port)
	}
	return p, nil
}

// Announce registers instance on port until the returned shutdown is called.
func Announce(instance string, port int, txt []string) (func(), error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", Service, err)
	}
	return server.Shutdown, nil
}

// Discover browses for radiometryd instances until ctx is done or timeout
// elapses. Results are deduplicated by hostname and port.
func Discover(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if h, ok := hostFromEntry(e); ok {
					resultMap[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) (Host, bool) {
	if e == nil {
		return Host{}, false
	}
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}, true
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
