package ipvs

import (
	"net"
	"strconv"
)

// Protocols printed in the leading column of a listing.
const (
	ProtocolTCP = "TCP"
	ProtocolUDP = "UDP"
	ProtocolFWM = "FWM"
)

// Forwarding modes as printed by ipvsadm.
const (
	ForwardMasq   = "Masq"
	ForwardRoute  = "Route"
	ForwardTunnel = "Tunnel"
)

// Service is one virtual service row of `ipvsadm -Ln`.
type Service struct {
	Protocol    string       `json:"protocol" yaml:"protocol"`
	Address     string       `json:"address" yaml:"address"`
	Port        int          `json:"port,omitempty" yaml:"port,omitempty"`
	Scheduler   string       `json:"scheduler" yaml:"scheduler"`
	Persistent  bool         `json:"persistent" yaml:"persistent"`
	Timeout     int          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RealServers []RealServer `json:"real_servers,omitempty" yaml:"real_servers,omitempty"`
}

// RealServer is one back-end row nested under a service.
type RealServer struct {
	Address      string `json:"address" yaml:"address"`
	Port         int    `json:"port" yaml:"port"`
	Forward      string `json:"forward" yaml:"forward"`
	Weight       int    `json:"weight" yaml:"weight"`
	ActiveConn   int    `json:"active_conn" yaml:"active_conn"`
	InactiveConn int    `json:"inactive_conn" yaml:"inactive_conn"`
}

// ServiceStats is one service row of `ipvsadm -Ln --stats`.
type ServiceStats struct {
	Protocol    string            `json:"protocol" yaml:"protocol"`
	Address     string            `json:"address" yaml:"address"`
	Port        int               `json:"port,omitempty" yaml:"port,omitempty"`
	Conns       uint64            `json:"conns" yaml:"conns"`
	InPkts      uint64            `json:"in_pkts" yaml:"in_pkts"`
	OutPkts     uint64            `json:"out_pkts" yaml:"out_pkts"`
	InBytes     uint64            `json:"in_bytes" yaml:"in_bytes"`
	OutBytes    uint64            `json:"out_bytes" yaml:"out_bytes"`
	RealServers []RealServerStats `json:"real_servers,omitempty" yaml:"real_servers,omitempty"`
}

// RealServerStats is one back-end row nested under a service in the stats
// listing.
type RealServerStats struct {
	Address  string `json:"address" yaml:"address"`
	Port     int    `json:"port" yaml:"port"`
	Conns    uint64 `json:"conns" yaml:"conns"`
	InPkts   uint64 `json:"in_pkts" yaml:"in_pkts"`
	OutPkts  uint64 `json:"out_pkts" yaml:"out_pkts"`
	InBytes  uint64 `json:"in_bytes" yaml:"in_bytes"`
	OutBytes uint64 `json:"out_bytes" yaml:"out_bytes"`
}

// Endpoint formats address and port the way ipvsadm accepts and prints
// them. IPv6 addresses are bracketed.
func Endpoint(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// Endpoint returns the service's address:port, or the bare address for
// protocols without a port.
func (s Service) Endpoint() string {
	if !hasPort(s.Protocol) {
		return s.Address
	}
	return Endpoint(s.Address, s.Port)
}

// Server returns the real server at address:port.
func (s *Service) Server(address string, port int) (*RealServer, bool) {
	for i := range s.RealServers {
		rs := &s.RealServers[i]
		if rs.Port == port && sameAddress(rs.Address, address) {
			return rs, true
		}
	}
	return nil, false
}

// Endpoint returns the real server's address:port.
func (r RealServer) Endpoint() string {
	return Endpoint(r.Address, r.Port)
}

// Endpoint returns the service's address:port.
func (s ServiceStats) Endpoint() string {
	if !hasPort(s.Protocol) {
		return s.Address
	}
	return Endpoint(s.Address, s.Port)
}

// Endpoint returns the real server's address:port.
func (r RealServerStats) Endpoint() string {
	return Endpoint(r.Address, r.Port)
}

// Find returns the TCP service listening on address:port.
func Find(services []Service, address string, port int) (*Service, bool) {
	for i := range services {
		s := &services[i]
		if s.Protocol == ProtocolTCP && s.Port == port && sameAddress(s.Address, address) {
			return s, true
		}
	}
	return nil, false
}

func hasPort(protocol string) bool {
	return protocol == ProtocolTCP || protocol == ProtocolUDP
}

func sameAddress(a, b string) bool {
	ipA, ipB := net.ParseIP(a), net.ParseIP(b)
	if ipA != nil && ipB != nil {
		return ipA.Equal(ipB)
	}
	return a == b
}
