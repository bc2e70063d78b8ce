package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func resetRegistry() {
	registry.mu.Lock()
	registry.components = make(map[string]component)
	registry.mu.Unlock()
	ComponentUp.Reset()
}

func TestGetReadiness_Ready(t *testing.T) {
	resetRegistry()
	SetVersion("v1.2.3")
	for _, name := range CriticalComponents {
		UpdateComponent(name, true, "")
	}
	UpdateComponent("collector", false, "not critical")

	status := GetReadiness()
	assert.Equal(t, "ready", status.Status)
	assert.Empty(t, status.Message)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.Equal(t, "ready", status.Components["store"])
	assert.Equal(t, "not ready: not critical", status.Components["collector"])
}

func TestGetReadiness_NotReady(t *testing.T) {
	tests := []struct {
		name    string
		setup   func()
		message string
		detail  string
	}{
		{
			name: "missing component",
			setup: func() {
				UpdateComponent("store", true, "")
				UpdateComponent("ipvsadm", true, "")
			},
			message: "waiting for api",
			detail:  "not registered",
		},
		{
			name: "unhealthy component",
			setup: func() {
				UpdateComponent("store", true, "")
				UpdateComponent("ipvsadm", false, "executable file not found")
				UpdateComponent("api", true, "")
			},
			message: "waiting for ipvsadm",
			detail:  "not ready: executable file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRegistry()
			tt.setup()

			status := GetReadiness()
			assert.Equal(t, "not_ready", status.Status)
			assert.Equal(t, tt.message, status.Message)
			assert.Contains(t, status.Components, tt.message[len("waiting for "):])
			assert.Contains(t, status.Components[tt.message[len("waiting for "):]], tt.detail)
		})
	}
}

func TestUpdateComponent_Gauge(t *testing.T) {
	resetRegistry()

	UpdateComponent("store", true, "")
	assert.Equal(t, 1.0, testutil.ToFloat64(ComponentUp.WithLabelValues("store")))

	UpdateComponent("store", false, "disk full")
	assert.Equal(t, 0.0, testutil.ToFloat64(ComponentUp.WithLabelValues("store")))
	assert.Equal(t, "not ready: disk full", GetReadiness().Components["store"])
}
