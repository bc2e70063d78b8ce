package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CriticalComponents must all be registered and healthy for the agent to
// report ready.
var CriticalComponents = []string{"store", "ipvsadm", "api"}

// ComponentUp mirrors the registry as a gauge per component
var ComponentUp = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "lvs_component_up",
		Help: "Whether an agent component reports healthy (1 = healthy)",
	},
	[]string{"component"},
)

func init() {
	prometheus.MustRegister(ComponentUp)
}

// HealthStatus is the readiness report served on /ready
type HealthStatus struct {
	Status     string            `json:"status"` // "ready" or "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type component struct {
	healthy bool
	message string
	updated time.Time
}

var registry = struct {
	mu         sync.RWMutex
	components map[string]component
	started    time.Time
	version    string
}{
	components: make(map[string]component),
	started:    time.Now(),
}

// SetVersion sets the version reported with readiness
func SetVersion(version string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.version = version
}

// UpdateComponent records the health of a component, registering it on
// first use.
func UpdateComponent(name string, healthy bool, message string) {
	registry.mu.Lock()
	registry.components[name] = component{healthy: healthy, message: message, updated: time.Now()}
	registry.mu.Unlock()

	up := 0.0
	if healthy {
		up = 1
	}
	ComponentUp.WithLabelValues(name).Set(up)
}

// GetReadiness reports whether every critical component is registered and
// healthy. Message names the first one that is not.
func GetReadiness() HealthStatus {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	status := HealthStatus{
		Status:     "ready",
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(registry.components)),
		Version:    registry.version,
		Uptime:     time.Since(registry.started).Truncate(time.Second).String(),
	}

	names := make([]string, 0, len(registry.components))
	for name := range registry.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := registry.components[name]
		if c.healthy {
			status.Components[name] = "ready"
		} else {
			status.Components[name] = "not ready: " + c.message
		}
	}

	for _, name := range CriticalComponents {
		c, ok := registry.components[name]
		switch {
		case !ok:
			status.Components[name] = "not registered"
		case c.healthy:
			continue
		}
		if status.Status == "ready" {
			status.Status = "not_ready"
			status.Message = "waiting for " + name
		}
	}
	return status
}
