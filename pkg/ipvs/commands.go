package ipvs

import "github.com/cuemby/lvs-agent/pkg/types"

// Tool is the administration command for the virtual server table.
const Tool = "ipvsadm"

// Kernel schedulers selected by the agent.
const (
	SchedulerWeightedRoundRobin      = "wrr"
	SchedulerSourceHashing           = "sh"
	SchedulerWeightedLeastConnection = "wlc"
)

// SchedulerFor maps a pool's load balancing method to a kernel scheduler.
// Unknown and empty methods fall back to weighted least connection.
func SchedulerFor(method types.LBMethod) string {
	switch method {
	case types.LBMethodRoundRobin:
		return SchedulerWeightedRoundRobin
	case types.LBMethodSourceIP:
		return SchedulerSourceHashing
	default:
		return SchedulerWeightedLeastConnection
	}
}

// ListCommand lists the table.
func ListCommand() []string {
	return []string{Tool, "-Ln"}
}

// StatsCommand lists the table with traffic counters.
func StatsCommand() []string {
	return []string{Tool, "-Ln", "--stats"}
}

// AddServiceCommand creates the TCP service at endpoint.
func AddServiceCommand(endpoint, scheduler string, persistent bool) []string {
	return serviceCommand("-A", endpoint, scheduler, persistent)
}

// EditServiceCommand updates the TCP service at endpoint.
func EditServiceCommand(endpoint, scheduler string, persistent bool) []string {
	return serviceCommand("-E", endpoint, scheduler, persistent)
}

func serviceCommand(verb, endpoint, scheduler string, persistent bool) []string {
	argv := []string{Tool, verb, "-t", endpoint, "-s", scheduler}
	if persistent {
		argv = append(argv, "-p")
	}
	return argv
}

// DeleteServiceCommand removes the TCP service at endpoint.
func DeleteServiceCommand(endpoint string) []string {
	return []string{Tool, "-D", "-t", endpoint}
}

// AddServerCommand attaches a masqueraded real server to a service.
func AddServerCommand(service, server string) []string {
	return []string{Tool, "-a", "-t", service, "-r", server, "-m"}
}

// EditServerCommand refreshes a real server under a service.
func EditServerCommand(service, server string) []string {
	return []string{Tool, "-e", "-t", service, "-r", server, "-m"}
}

// DeleteServerCommand detaches a real server from a service.
func DeleteServerCommand(service, server string) []string {
	return []string{Tool, "-d", "-t", service, "-r", server}
}

// FlushCommand clears the whole table.
func FlushCommand() []string {
	return []string{Tool, "-C"}
}

// Verb returns the mutation flag of a table command, e.g. "-A".
func Verb(argv []string) string {
	if len(argv) < 2 || argv[0] != Tool {
		return ""
	}
	return argv[1]
}
