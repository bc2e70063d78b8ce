package ipvs

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	headerVersion     = "IP Virtual Server version 1.2.1 (size=4096)"
	headerListing     = "Prot LocalAddress:Port Scheduler Flags"
	headerListingDest = "  -> RemoteAddress:Port           Forward Weight ActiveConn InActConn"
	headerStats       = "Prot LocalAddress:Port               Conns   InPkts  OutPkts  InBytes OutBytes"
	headerStatsDest   = "  -> RemoteAddress:Port"

	serverMarker    = "->"
	persistentToken = "persistent"
)

// ParseError reports a listing row that could not be understood.
type ParseError struct {
	Line   int
	Row    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ipvsadm output line %d: %s: %q", e.Line, e.Reason, e.Row)
}

// row is one non-blank, non-header line of a listing split into fields.
type row struct {
	line   int
	text   string
	child  bool
	fields []string
}

func (r row) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Line: r.line, Row: r.text, Reason: fmt.Sprintf(format, args...)}
}

// tokenize splits tool output into rows. A row whose leading column is
// blank and whose first field is the forwarding marker belongs to the last
// service row. Columns are right-aligned, so fields are split on runs of
// whitespace.
func tokenize(out string) ([]row, error) {
	var rows []row
	scanner := bufio.NewScanner(strings.NewReader(out))
	n := 0
	for scanner.Scan() {
		n++
		text := scanner.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || isHeader(trimmed) {
			continue
		}

		r := row{line: n, text: text, fields: strings.Fields(text)}
		if text[0] == ' ' || text[0] == '\t' {
			if r.fields[0] != serverMarker {
				return nil, r.errorf("indented row without %q marker", serverMarker)
			}
			r.child = true
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ipvsadm output: %w", err)
	}
	return rows, nil
}

func isHeader(trimmed string) bool {
	return strings.HasPrefix(trimmed, "IP Virtual Server") ||
		strings.HasPrefix(trimmed, "Prot ") ||
		strings.HasPrefix(trimmed, serverMarker+" RemoteAddress")
}

// ParseListing parses the output of `ipvsadm -Ln` into services with their
// real servers, in table order.
func ParseListing(out string) ([]Service, error) {
	rows, err := tokenize(out)
	if err != nil {
		return nil, err
	}

	var services []Service
	for _, r := range rows {
		if !r.child {
			svc, err := parseServiceRow(r)
			if err != nil {
				return nil, err
			}
			services = append(services, svc)
			continue
		}

		if len(services) == 0 {
			return nil, r.errorf("real server row before any service")
		}
		rs, err := parseServerRow(r)
		if err != nil {
			return nil, err
		}
		last := &services[len(services)-1]
		last.RealServers = append(last.RealServers, rs)
	}
	return services, nil
}

// parseServiceRow parses [protocol, endpoint, scheduler, flags...]. A
// "persistent" flag shifts the timeout one field to the right.
func parseServiceRow(r row) (Service, error) {
	if len(r.fields) < 3 {
		return Service{}, r.errorf("service row has %d fields, want at least 3", len(r.fields))
	}

	svc := Service{Protocol: r.fields[0], Scheduler: r.fields[2]}
	addr, port, err := splitEndpoint(svc.Protocol, r.fields[1])
	if err != nil {
		return Service{}, r.errorf("%v", err)
	}
	svc.Address, svc.Port = addr, port

	flags := r.fields[3:]
	if len(flags) == 0 {
		return svc, nil
	}

	timeoutField := flags[0]
	if flags[0] == persistentToken {
		svc.Persistent = true
		if len(flags) < 2 {
			return svc, nil
		}
		timeoutField = flags[1]
	}

	timeout, err := strconv.Atoi(timeoutField)
	switch {
	case err == nil:
		svc.Timeout = timeout
	case svc.Persistent:
		return Service{}, r.errorf("invalid persistence timeout %q", timeoutField)
	}
	return svc, nil
}

// parseServerRow parses [marker, endpoint, forward, weight, active, inactive].
func parseServerRow(r row) (RealServer, error) {
	if len(r.fields) < 6 {
		return RealServer{}, r.errorf("real server row has %d fields, want 6", len(r.fields))
	}

	addr, port, err := splitEndpoint(ProtocolTCP, r.fields[1])
	if err != nil {
		return RealServer{}, r.errorf("%v", err)
	}
	rs := RealServer{Address: addr, Port: port, Forward: r.fields[2]}

	ints := []*int{&rs.Weight, &rs.ActiveConn, &rs.InactiveConn}
	for i, dst := range ints {
		v, err := strconv.Atoi(r.fields[3+i])
		if err != nil {
			return RealServer{}, r.errorf("invalid number %q", r.fields[3+i])
		}
		*dst = v
	}
	return rs, nil
}

// splitEndpoint splits address:port on the last colon. Protocols without a
// port (firewall marks) return the field unchanged.
func splitEndpoint(protocol, field string) (string, int, error) {
	if !hasPort(protocol) {
		return field, 0, nil
	}
	i := strings.LastIndex(field, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("endpoint %q has no port", field)
	}
	port, err := strconv.Atoi(field[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("endpoint %q has invalid port", field)
	}
	addr := strings.TrimSuffix(strings.TrimPrefix(field[:i], "["), "]")
	return addr, port, nil
}

// FormatListing renders services in the layout of `ipvsadm -Ln`.
func FormatListing(services []Service) string {
	var b strings.Builder
	b.WriteString(headerVersion + "\n")
	b.WriteString(headerListing + "\n")
	b.WriteString(headerListingDest + "\n")

	for _, svc := range services {
		fmt.Fprintf(&b, "%-4s %s %s", svc.Protocol, svc.Endpoint(), svc.Scheduler)
		switch {
		case svc.Persistent:
			fmt.Fprintf(&b, " %s %d", persistentToken, svc.Timeout)
		case svc.Timeout != 0:
			fmt.Fprintf(&b, " %d", svc.Timeout)
		}
		b.WriteByte('\n')

		for _, rs := range svc.RealServers {
			fmt.Fprintf(&b, "  %s %-28s %-7s %-6d %-10d %d\n",
				serverMarker, rs.Endpoint(), rs.Forward, rs.Weight, rs.ActiveConn, rs.InactiveConn)
		}
	}
	return b.String()
}
