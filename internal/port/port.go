package port

import (
	"fmt"
	"net"
	"strconv"
)

// Pick returns a TCP port on host that is free right now and is not one of
// exclude. The port is released before returning, so a racing process can
// still take it; callers hand it to a child that binds shortly after.
func Pick(host string, exclude ...int) (int, error) {
	for attempts := 0; attempts < 16; attempts++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return 0, fmt.Errorf("picking port on %s: %w", host, err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		if !excluded(port, exclude) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port on %s outside %v", host, exclude)
}

// Available reports whether host:port can be bound right now.
func Available(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func excluded(port int, exclude []int) bool {
	for _, p := range exclude {
		if p == port {
			return true
		}
	}
	return false
}
