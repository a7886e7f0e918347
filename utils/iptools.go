package utils

import (
	"errors"
	"net"
	"syscall"
)

// GetOutboundIP gets the preferred outbound IP of this machine.
// No packet is sent; dialing UDP only selects the route.
func GetOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}

	return localAddr.IP.String()
}

// IsAddrInUse reports whether err comes from binding an address that
// is already taken.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
