// Package ipvstest provides an in-memory stand-in for the commands the
// agent runs on a host: ipvsadm, the `ip netns`/`ip link` subset, and nc.
package ipvstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/netns"
)

// DefaultPersistenceTimeout is the timeout ipvsadm applies to -p without a
// value.
const DefaultPersistenceTimeout = 300

// Call is one command line received by the Host.
type Call struct {
	Namespace string
	Argv      []string
}

func (c Call) String() string {
	if c.Namespace == "" {
		return strings.Join(c.Argv, " ")
	}
	return c.Namespace + ": " + strings.Join(c.Argv, " ")
}

type namespace struct {
	services []ipvs.Service
	devices  []string
	stats    []ipvs.ServiceStats
}

// Host simulates the network namespaces of one machine. It implements
// netns.Executor.
type Host struct {
	// Delay is slept before each command is applied.
	Delay time.Duration

	// FailOn, when set, is consulted before each command; a non-nil return
	// fails the command with that error.
	FailOn func(namespace string, argv []string) error

	mu         sync.Mutex
	namespaces map[string]*namespace
	reachable  map[string]bool
	calls      []Call
}

var _ netns.Executor = (*Host)(nil)

// NewHost returns a host with no namespaces.
func NewHost() *Host {
	return &Host{
		namespaces: make(map[string]*namespace),
		reachable:  make(map[string]bool),
	}
}

// AddNamespace creates a namespace holding only a loopback device.
func (h *Host) AddNamespace(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.namespaces[name]; !ok {
		h.namespaces[name] = &namespace{devices: []string{"lo"}}
	}
}

// HasNamespace reports whether the namespace exists.
func (h *Host) HasNamespace(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.namespaces[name]
	return ok
}

// SetDevices replaces the link list of a namespace.
func (h *Host) SetDevices(name string, devices ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ns, ok := h.namespaces[name]; ok {
		ns.devices = append([]string(nil), devices...)
	}
}

// SetServices replaces the table of a namespace.
func (h *Host) SetServices(name string, services []ipvs.Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ns, ok := h.namespaces[name]; ok {
		ns.services = cloneServices(services)
	}
}

// SetStats fixes the output of `ipvsadm -Ln --stats` for a namespace.
// Without it the stats listing mirrors the table with zero counters.
func (h *Host) SetStats(name string, stats []ipvs.ServiceStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ns, ok := h.namespaces[name]; ok {
		ns.stats = stats
	}
}

// SetReachable controls the outcome of `nc -z` against address:port from
// inside the namespace.
func (h *Host) SetReachable(name, address string, port int, reachable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reachable[name+" "+ipvs.Endpoint(address, port)] = reachable
}

// Services returns a copy of the table of a namespace.
func (h *Host) Services(name string) []ipvs.Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	ns, ok := h.namespaces[name]
	if !ok {
		return nil
	}
	return cloneServices(ns.services)
}

// Calls returns every command received so far.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Mutations returns the ipvsadm commands received so far that change the
// table, formatted as strings.
func (h *Host) Mutations() []string {
	var out []string
	for _, c := range h.Calls() {
		switch ipvs.Verb(c.Argv) {
		case "-A", "-E", "-D", "-a", "-e", "-d", "-C":
			out = append(out, strings.Join(c.Argv, " "))
		}
	}
	return out
}

// ResetCalls forgets the recorded commands.
func (h *Host) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// Execute applies argv to the simulated host.
func (h *Host) Execute(ctx context.Context, name string, argv []string) (string, error) {
	if h.Delay > 0 {
		select {
		case <-time.After(h.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, Call{Namespace: name, Argv: append([]string(nil), argv...)})

	if h.FailOn != nil {
		if err := h.FailOn(name, argv); err != nil {
			return "", toolError(name, argv, 1, err.Error())
		}
	}
	if len(argv) == 0 {
		return "", toolError(name, argv, -1, "empty command line")
	}

	var ns *namespace
	if name != "" {
		var ok bool
		if ns, ok = h.namespaces[name]; !ok {
			return "", toolError(name, argv, 1,
				fmt.Sprintf("Cannot open network namespace %q: No such file or directory", name))
		}
	}

	switch argv[0] {
	case ipvs.Tool:
		if ns == nil {
			return "", toolError(name, argv, 1, "host table is not simulated")
		}
		return ns.ipvsadm(name, argv)
	case "ip":
		return h.ip(name, ns, argv)
	case "nc":
		return h.nc(name, argv)
	default:
		return "", toolError(name, argv, 127, argv[0]+": command not found")
	}
}

func (h *Host) ip(name string, ns *namespace, argv []string) (string, error) {
	args := strings.Join(argv[1:], " ")
	switch {
	case args == "netns list":
		names := make([]string, 0, len(h.namespaces))
		for n := range h.namespaces {
			names = append(names, n)
		}
		sort.Strings(names)
		var b strings.Builder
		for i, n := range names {
			fmt.Fprintf(&b, "%s (id: %d)\n", n, i)
		}
		return b.String(), nil

	case strings.HasPrefix(args, "netns add ") && len(argv) == 4:
		if _, ok := h.namespaces[argv[3]]; ok {
			return "", toolError(name, argv, 1, fmt.Sprintf("Cannot create namespace file \"/var/run/netns/%s\": File exists", argv[3]))
		}
		h.namespaces[argv[3]] = &namespace{devices: []string{"lo"}}
		return "", nil

	case strings.HasPrefix(args, "netns delete ") && len(argv) == 4:
		if _, ok := h.namespaces[argv[3]]; !ok {
			return "", toolError(name, argv, 1, fmt.Sprintf("Cannot remove namespace file \"/var/run/netns/%s\": No such file or directory", argv[3]))
		}
		delete(h.namespaces, argv[3])
		return "", nil

	case args == "-o link show":
		if ns == nil {
			return "1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536\n", nil
		}
		var b strings.Builder
		for i, dev := range ns.devices {
			fmt.Fprintf(&b, "%d: %s: <BROADCAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP\n", i+1, dev)
		}
		return b.String(), nil

	case strings.HasPrefix(args, "link "), strings.HasPrefix(args, "route "), strings.HasPrefix(args, "addr "):
		return "", nil
	}
	return "", toolError(name, argv, 1, "Object \""+strings.Join(argv[1:], " ")+"\" is unknown")
}

func (h *Host) nc(name string, argv []string) (string, error) {
	if len(argv) < 3 {
		return "", toolError(name, argv, 1, "usage: nc [-z] [-w timeout] host port")
	}
	addr := argv[len(argv)-2]
	port, err := strconv.Atoi(argv[len(argv)-1])
	if err != nil {
		return "", toolError(name, argv, 1, "invalid port")
	}
	if !h.reachable[name+" "+ipvs.Endpoint(addr, port)] {
		return "", toolError(name, argv, 1, "")
	}
	return "", nil
}

type ipvsadmArgs struct {
	verb       string
	service    string
	server     string
	scheduler  string
	persistent bool
	timeout    int
	forward    string
	weight     int
	stats      bool
}

func parseIpvsadmArgs(argv []string) (ipvsadmArgs, error) {
	a := ipvsadmArgs{scheduler: "wlc", forward: ipvs.ForwardRoute, weight: 1}
	next := func(i *int) (string, error) {
		*i++
		if *i >= len(argv) {
			return "", fmt.Errorf("option %s requires an argument", argv[*i-1])
		}
		return argv[*i], nil
	}

	for i := 1; i < len(argv); i++ {
		var err error
		switch arg := argv[i]; arg {
		case "-A", "-E", "-D", "-a", "-e", "-d", "-C":
			a.verb = arg
		case "-L", "-Ln":
			a.verb = "-L"
		case "-n":
		case "--stats":
			a.stats = true
		case "-t":
			a.service, err = next(&i)
		case "-r":
			a.server, err = next(&i)
		case "-s":
			a.scheduler, err = next(&i)
		case "-p":
			a.persistent = true
			a.timeout = DefaultPersistenceTimeout
			if i+1 < len(argv) {
				if t, convErr := strconv.Atoi(argv[i+1]); convErr == nil {
					a.timeout = t
					i++
				}
			}
		case "-m":
			a.forward = ipvs.ForwardMasq
		case "-g":
			a.forward = ipvs.ForwardRoute
		case "-i":
			a.forward = ipvs.ForwardTunnel
		case "-w":
			var w string
			if w, err = next(&i); err == nil {
				a.weight, err = strconv.Atoi(w)
			}
		default:
			return a, fmt.Errorf("invalid option %s", arg)
		}
		if err != nil {
			return a, err
		}
	}
	if a.verb == "" {
		return a, errors.New("no command specified")
	}
	return a, nil
}

func (ns *namespace) ipvsadm(name string, argv []string) (string, error) {
	a, err := parseIpvsadmArgs(argv)
	if err != nil {
		return "", toolError(name, argv, 2, err.Error())
	}
	fail := func(msg string) (string, error) {
		return "", toolError(name, argv, 1, msg)
	}

	switch a.verb {
	case "-L":
		if a.stats {
			return ipvs.FormatStats(ns.statsListing()), nil
		}
		return ipvs.FormatListing(ns.services), nil
	case "-C":
		ns.services = nil
		return "", nil
	}

	addr, port, err := splitEndpoint(a.service)
	if err != nil {
		return fail(err.Error())
	}
	svc, exists := ipvs.Find(ns.services, addr, port)

	switch a.verb {
	case "-A":
		if exists {
			return fail("Service already exists")
		}
		ns.services = append(ns.services, ipvs.Service{
			Protocol:   ipvs.ProtocolTCP,
			Address:    addr,
			Port:       port,
			Scheduler:  a.scheduler,
			Persistent: a.persistent,
			Timeout:    a.timeout,
		})
		return "", nil
	case "-E":
		if !exists {
			return fail("No such service")
		}
		svc.Scheduler, svc.Persistent, svc.Timeout = a.scheduler, a.persistent, a.timeout
		return "", nil
	case "-D":
		if !exists {
			return fail("No such service")
		}
		for i := range ns.services {
			if &ns.services[i] == svc {
				ns.services = append(ns.services[:i], ns.services[i+1:]...)
				break
			}
		}
		return "", nil
	}

	if !exists {
		return fail("Service not defined")
	}
	saddr, sport, err := splitEndpoint(a.server)
	if err != nil {
		return fail(err.Error())
	}
	rs, rsExists := svc.Server(saddr, sport)

	switch a.verb {
	case "-a":
		if rsExists {
			return fail("Destination already exists")
		}
		svc.RealServers = append(svc.RealServers, ipvs.RealServer{
			Address: saddr,
			Port:    sport,
			Forward: a.forward,
			Weight:  a.weight,
		})
	case "-e":
		if !rsExists {
			return fail("No such destination")
		}
		rs.Forward, rs.Weight = a.forward, a.weight
	case "-d":
		if !rsExists {
			return fail("No such destination")
		}
		for i := range svc.RealServers {
			if &svc.RealServers[i] == rs {
				svc.RealServers = append(svc.RealServers[:i], svc.RealServers[i+1:]...)
				break
			}
		}
		if len(svc.RealServers) == 0 {
			svc.RealServers = nil
		}
	}
	return "", nil
}

func (ns *namespace) statsListing() []ipvs.ServiceStats {
	if ns.stats != nil {
		return ns.stats
	}
	var stats []ipvs.ServiceStats
	for _, svc := range ns.services {
		s := ipvs.ServiceStats{Protocol: svc.Protocol, Address: svc.Address, Port: svc.Port}
		for _, rs := range svc.RealServers {
			s.RealServers = append(s.RealServers, ipvs.RealServerStats{Address: rs.Address, Port: rs.Port})
		}
		stats = append(stats, s)
	}
	return stats
}

func splitEndpoint(endpoint string) (string, int, error) {
	i := strings.LastIndex(endpoint, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("illegal address:port %q", endpoint)
	}
	port, err := strconv.Atoi(endpoint[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("illegal port in %q", endpoint)
	}
	return strings.Trim(endpoint[:i], "[]"), port, nil
}

func cloneServices(services []ipvs.Service) []ipvs.Service {
	if services == nil {
		return nil
	}
	out := make([]ipvs.Service, len(services))
	for i, svc := range services {
		out[i] = svc
		if svc.RealServers != nil {
			out[i].RealServers = append([]ipvs.RealServer(nil), svc.RealServers...)
		}
	}
	return out
}

func toolError(namespace string, argv []string, code int, stderr string) error {
	return &netns.ToolError{
		Namespace: namespace,
		Argv:      append([]string(nil), argv...),
		ExitCode:  code,
		Stderr:    stderr,
		Err:       fmt.Errorf("exit status %d", code),
	}
}
