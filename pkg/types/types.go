package types

// Status is the provisioning status the control plane reports for a pool,
// VIP or member.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusPendingCreate Status = "PENDING_CREATE"
	StatusPendingUpdate Status = "PENDING_UPDATE"
	StatusPendingDelete Status = "PENDING_DELETE"
	StatusInactive      Status = "INACTIVE"
	StatusDown          Status = "DOWN"
	StatusError         Status = "ERROR"
)

// ActivePendingStatuses are the statuses under which a pool or VIP may be
// deployed into the table.
var ActivePendingStatuses = []Status{
	StatusActive,
	StatusPendingCreate,
	StatusPendingUpdate,
}

// IsActiveOrPending reports whether s is one of ActivePendingStatuses.
func (s Status) IsActiveOrPending() bool {
	for _, st := range ActivePendingStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// LBMethod is the pool's load balancing method as configured upstream.
type LBMethod string

const (
	LBMethodRoundRobin       LBMethod = "ROUND_ROBIN"
	LBMethodLeastConnections LBMethod = "LEAST_CONNECTIONS"
	LBMethodSourceIP         LBMethod = "SOURCE_IP"
)

// HealthMonitor is a health monitor associated with a pool. Only its
// presence matters to the agent: a pool without monitors is never probed.
type HealthMonitor struct {
	ID         string `json:"id" yaml:"id"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Delay      int    `json:"delay,omitempty" yaml:"delay,omitempty"`
	Timeout    int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Pool is a group of members load balanced behind one VIP.
type Pool struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name,omitempty" yaml:"name,omitempty"`
	Protocol       string          `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	LBMethod       LBMethod        `json:"lb_method,omitempty" yaml:"lb_method,omitempty"`
	Status         Status          `json:"status" yaml:"status"`
	AdminStateUp   bool            `json:"admin_state_up" yaml:"admin_state_up"`
	HealthMonitors []HealthMonitor `json:"health_monitors,omitempty" yaml:"health_monitors,omitempty"`
}

// SessionPersistence enables persistent connections on the VIP.
type SessionPersistence struct {
	Type       string `json:"type" yaml:"type"`
	CookieName string `json:"cookie_name,omitempty" yaml:"cookie_name,omitempty"`
}

// Subnet is the subnet a fixed IP was allocated from.
type Subnet struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	CIDR      string `json:"cidr" yaml:"cidr"`
	GatewayIP string `json:"gateway_ip,omitempty" yaml:"gateway_ip,omitempty"`
}

// FixedIP is one address assigned to a port.
type FixedIP struct {
	IPAddress string `json:"ip_address" yaml:"ip_address"`
	Subnet    Subnet `json:"subnet" yaml:"subnet"`
}

// Port is the virtual interface descriptor backing a VIP.
type Port struct {
	ID         string    `json:"id" yaml:"id"`
	NetworkID  string    `json:"network_id" yaml:"network_id"`
	MACAddress string    `json:"mac_address" yaml:"mac_address"`
	FixedIPs   []FixedIP `json:"fixed_ips" yaml:"fixed_ips"`
}

// Vip is the front-end address of a pool.
type Vip struct {
	ID                 string              `json:"id,omitempty" yaml:"id,omitempty"`
	Address            string              `json:"address" yaml:"address"`
	ProtocolPort       int                 `json:"protocol_port,omitempty" yaml:"protocol_port,omitempty"`
	SessionPersistence *SessionPersistence `json:"session_persistence,omitempty" yaml:"session_persistence,omitempty"`
	Status             Status              `json:"status" yaml:"status"`
	AdminStateUp       bool                `json:"admin_state_up" yaml:"admin_state_up"`
	Port               Port                `json:"port" yaml:"port"`
}

// Member is a back-end endpoint of a pool.
type Member struct {
	ID           string `json:"id" yaml:"id"`
	PoolID       string `json:"pool_id,omitempty" yaml:"pool_id,omitempty"`
	Address      string `json:"address" yaml:"address"`
	ProtocolPort int    `json:"protocol_port" yaml:"protocol_port"`
	Weight       int    `json:"weight,omitempty" yaml:"weight,omitempty"`
	AdminStateUp bool   `json:"admin_state_up,omitempty" yaml:"admin_state_up,omitempty"`
}

// LogicalConfig is the desired state of one pool as supplied by the
// control plane. It is read-only input to a reconciliation.
type LogicalConfig struct {
	Pool    Pool     `json:"pool" yaml:"pool"`
	Vip     *Vip     `json:"vip,omitempty" yaml:"vip,omitempty"`
	Members []Member `json:"members,omitempty" yaml:"members,omitempty"`
}

// Deployable reports whether the configuration may be written to the
// table: a VIP must be present, and both the VIP and the pool must be
// administratively up with an active or pending status.
func (c *LogicalConfig) Deployable() bool {
	if c == nil || c.Vip == nil {
		return false
	}
	if !c.Vip.Status.IsActiveOrPending() || !c.Vip.AdminStateUp {
		return false
	}
	if !c.Pool.Status.IsActiveOrPending() || !c.Pool.AdminStateUp {
		return false
	}
	return true
}

// Member returns the member with the given id.
func (c *LogicalConfig) Member(id string) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// FailedChecksUnhealthy is the failure counter reported for a member whose
// probe failed.
const FailedChecksUnhealthy = 5

// MemberHealth is the derived health of a member, in the shape the control
// plane's status API consumes.
type MemberHealth struct {
	MemberID     string `json:"member_id" yaml:"member_id"`
	Status       Status `json:"status" yaml:"status"`
	Health       string `json:"health" yaml:"health"`
	FailedChecks int    `json:"failed_checks" yaml:"failed_checks"`
}

// NewMemberHealth builds the report for a member from a probe outcome.
func NewMemberHealth(memberID string, reachable bool) MemberHealth {
	if reachable {
		return MemberHealth{MemberID: memberID, Status: StatusActive}
	}
	return MemberHealth{
		MemberID:     memberID,
		Status:       StatusInactive,
		FailedChecks: FailedChecksUnhealthy,
	}
}
