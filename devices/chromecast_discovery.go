package devices

import (
	"context"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	googlecastService = "_googlecast._tcp"
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1
)

var (
	mdnsQuery        = mdns.QueryContext
	activeInterfaces = getActiveNetworkInterfaces
)

// discoverChromecasts queries every active interface concurrently for
// timeout and returns the receivers that answered, deduplicated by address.
func discoverChromecasts(ctx context.Context, timeout time.Duration) []CastDevice {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entriesCh := make(chan *mdns.ServiceEntry, 256)
	resultCh := make(chan []CastDevice)
	go func() {
		var found []CastDevice
		seen := make(map[string]struct{})
		for entry := range entriesCh {
			dev, ok := castDeviceFromEntry(entry)
			if !ok {
				continue
			}
			if _, dup := seen[dev.Addr()]; dup {
				continue
			}
			seen[dev.Addr()] = struct{}{}
			found = append(found, dev)
		}
		resultCh <- found
	}()

	queryIface := func(iface *net.Interface) {
		params := mdns.DefaultParams(googlecastService)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		params.WantUnicastResponse = true
		params.Logger = log.New(io.Discard, "", 0)
		params.Interface = iface
		_ = mdnsQuery(ctx, params)
	}

	interfaces := activeInterfaces()
	if len(interfaces) > 0 {
		var wg sync.WaitGroup
		for _, iface := range interfaces {
			wg.Add(1)
			go func(iface net.Interface) {
				defer wg.Done()
				queryIface(&iface)
			}(iface)
		}
		wg.Wait()
	} else {
		queryIface(nil)
	}

	close(entriesCh)
	return <-resultCh
}

// castDeviceFromEntry maps a _googlecast answer to a CastDevice using the
// fn, md, id and ca TXT fields.
func castDeviceFromEntry(entry *mdns.ServiceEntry) (CastDevice, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return CastDevice{}, false
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return CastDevice{}, false
	}

	dev := CastDevice{
		FriendlyName: entry.Name,
		Host:         entry.AddrV4.String(),
		Port:         entry.Port,
	}
	if dev.Port == 0 {
		dev.Port = DefaultCastPort
	}

	for _, txt := range entry.InfoFields {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}

		switch key {
		case "fn":
			dev.FriendlyName = value
		case "md":
			dev.ModelName = value
		case "id":
			dev.ID = value
		case "ca":
			dev.AudioOnly = isChromecastAudioOnly(value)
		}
	}

	if idx := strings.Index(dev.FriendlyName, "._googlecast"); idx > 0 {
		dev.FriendlyName = dev.FriendlyName[:idx]
	}

	return dev, true
}

// getActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func getActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}

	return active
}

// isChromecastAudioOnly checks the "ca" capability bitmask. A device
// without the video-out bit is audio-only. Unparseable values count as
// video capable.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
