package httpx

import (
	"net"
	"strconv"
)

// publicAddress is the address viewers use to reach a server bound
// to the address: its host, localhost when empty, with the port the
// listener got. The default HTTP(S) ports are left out.
//
// :0 on port 41234 becomes localhost:41234, cam.lan:80 stays cam.lan.
func publicAddress(address string, port int) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	if port <= 0 || port == 80 || port == 443 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
