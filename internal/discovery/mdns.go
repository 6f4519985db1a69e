// ABOUTME: mDNS browsing for a local live agent gateway
// ABOUTME: Used when no endpoint is configured and discovery is enabled
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the advertised service for gateways
const ServiceType = "_livetalk._tcp"

const defaultPath = "/live"

// ErrNotFound is returned when no gateway answered before the timeout
var ErrNotFound = errors.New("no live gateway found")

// Gateway describes a discovered gateway
type Gateway struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket endpoint of the gateway
func (g Gateway) URL() string {
	return "ws://" + net.JoinHostPort(g.Host, strconv.Itoa(g.Port)) + g.Path
}

// queryFunc is swapped in tests
var queryFunc = mdns.QueryContext

// Browse queries the network once and returns the first usable gateway
func Browse(ctx context.Context, timeout time.Duration, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *mdns.ServiceEntry, 10)
	found := make(chan Gateway, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			gw, ok := fromEntry(entry)
			if !ok {
				logger.Debug("ignoring mDNS entry without address", "name", entry.Name)
				continue
			}
			logger.Info("discovered gateway", "name", gw.Name, "url", gw.URL())
			select {
			case found <- gw:
				cancel()
			default:
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	err := queryFunc(ctx, params)
	close(entries)
	<-done

	select {
	case gw := <-found:
		return gw, nil
	default:
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Gateway{}, fmt.Errorf("mdns query: %w", err)
	}
	return Gateway{}, ErrNotFound
}

func fromEntry(entry *mdns.ServiceEntry) (Gateway, bool) {
	if entry == nil || entry.Port == 0 {
		return Gateway{}, false
	}

	host := ""
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	case entry.Host != "":
		host = strings.TrimSuffix(entry.Host, ".")
	default:
		return Gateway{}, false
	}

	return Gateway{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Path: pathFromTXT(entry.InfoFields),
	}, true
}

// pathFromTXT reads the path= record, defaulting to /live
func pathFromTXT(fields []string) string {
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key != "path" || value == "" {
			continue
		}
		if !strings.HasPrefix(value, "/") {
			value = "/" + value
		}
		return value
	}
	return defaultPath
}
