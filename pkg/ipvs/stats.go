package ipvs

import (
	"fmt"
	"strconv"
	"strings"
)

// counterSuffixes are the unit suffixes ipvsadm appends to large counters
// unless --exact is given. Each step multiplies by 1000.
var counterSuffixes = map[byte]uint64{
	'K': 1e3,
	'M': 1e6,
	'G': 1e9,
	'T': 1e12,
}

// ParseStats parses the output of `ipvsadm -Ln --stats`. Service and real
// server rows both carry Conns, InPkts, OutPkts, InBytes and OutBytes. Rows
// with a single packet column (Conns, Pkts, InBytes, OutBytes) are accepted
// too; their packets count as InPkts and OutPkts is zero.
func ParseStats(out string) ([]ServiceStats, error) {
	rows, err := tokenize(out)
	if err != nil {
		return nil, err
	}

	var services []ServiceStats
	for _, r := range rows {
		var counters []uint64
		switch {
		case len(r.fields) >= 7:
			counters, err = parseCounters(r, r.fields[2:7])
		case len(r.fields) == 6:
			counters, err = parseCounters(r, r.fields[2:6])
			if err == nil {
				counters = []uint64{counters[0], counters[1], 0, counters[2], counters[3]}
			}
		default:
			return nil, r.errorf("stats row has %d fields, want 6 or 7", len(r.fields))
		}
		if err != nil {
			return nil, err
		}

		if !r.child {
			addr, port, err := splitEndpoint(r.fields[0], r.fields[1])
			if err != nil {
				return nil, r.errorf("%v", err)
			}
			services = append(services, ServiceStats{
				Protocol: r.fields[0],
				Address:  addr,
				Port:     port,
				Conns:    counters[0],
				InPkts:   counters[1],
				OutPkts:  counters[2],
				InBytes:  counters[3],
				OutBytes: counters[4],
			})
			continue
		}

		if len(services) == 0 {
			return nil, r.errorf("real server row before any service")
		}
		addr, port, err := splitEndpoint(ProtocolTCP, r.fields[1])
		if err != nil {
			return nil, r.errorf("%v", err)
		}
		last := &services[len(services)-1]
		last.RealServers = append(last.RealServers, RealServerStats{
			Address:  addr,
			Port:     port,
			Conns:    counters[0],
			InPkts:   counters[1],
			OutPkts:  counters[2],
			InBytes:  counters[3],
			OutBytes: counters[4],
		})
	}
	return services, nil
}

func parseCounters(r row, fields []string) ([]uint64, error) {
	counters := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := ParseCounter(f)
		if err != nil {
			return nil, r.errorf("%v", err)
		}
		counters[i] = v
	}
	return counters, nil
}

// ParseCounter parses a stats counter such as "1234" or "56K".
func ParseCounter(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty counter")
	}
	mult := uint64(1)
	if m, ok := counterSuffixes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter %q", s)
	}
	return v * mult, nil
}

// FormatStats renders stats in the layout of `ipvsadm -Ln --stats --exact`.
func FormatStats(services []ServiceStats) string {
	var b strings.Builder
	b.WriteString(headerVersion + "\n")
	b.WriteString(headerStats + "\n")
	b.WriteString(headerStatsDest + "\n")

	for _, svc := range services {
		fmt.Fprintf(&b, "%-4s %-33s %8d %8d %8d %8d %8d\n",
			svc.Protocol, svc.Endpoint(), svc.Conns, svc.InPkts, svc.OutPkts, svc.InBytes, svc.OutBytes)
		for _, rs := range svc.RealServers {
			fmt.Fprintf(&b, "  %s %-30s %8d %8d %8d %8d %8d\n",
				serverMarker, rs.Endpoint(), rs.Conns, rs.InPkts, rs.OutPkts, rs.InBytes, rs.OutBytes)
		}
	}
	return b.String()
}
