package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector exposed on the status server's /metrics.
var Registry = prometheus.NewRegistry()

var (
	// DeviceState is 1 for the current device state and 0 for the others.
	DeviceState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicepeer_device_state",
			Help: "Current device state (1 for the active state).",
		},
		[]string{"state"},
	)

	// ClockTicks counts the clock loop ticks of the current agent.
	ClockTicks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicepeer_clock_ticks",
			Help: "Seconds elapsed on the agent clock loop.",
		},
	)

	// TasksExecuted counts tasks run by the scheduler.
	TasksExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicepeer_tasks_executed_total",
			Help: "Total number of scheduler tasks executed.",
		},
	)

	// WiFiConnectAttempts counts association attempts by outcome.
	WiFiConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicepeer_wifi_connect_attempts_total",
			Help: "Wi-Fi association attempts.",
		},
		[]string{"result"}, // result: connected/timeout/error
	)

	// WiFiDisconnects counts link losses seen by the monitor.
	WiFiDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicepeer_wifi_disconnects_total",
			Help: "Wi-Fi link losses detected while monitoring.",
		},
	)

	// ProvisioningEvents counts BLE provisioning events by kind.
	ProvisioningEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicepeer_provisioning_events_total",
			Help: "BLE provisioning events.",
		},
		[]string{"event"}, // event: central_connected/central_disconnected/credential/malformed/overflow/rejected
	)

	// SessionMessages counts session frames by direction and kind.
	SessionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicepeer_session_messages_total",
			Help: "Frames exchanged with the backend.",
		},
		[]string{"direction", "kind"}, // direction: in/out, kind: json/audio/invalid
	)

	// CapabilityCommands counts capability invocations by result.
	CapabilityCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicepeer_capability_commands_total",
			Help: "Capability commands invoked.",
		},
		[]string{"result"}, // result: ok/not_found/invalid_argument/error
	)

	// HTTPRequestLatency records version check and activation latency.
	HTTPRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicepeer_http_request_latency_seconds",
			Help:    "Latency of version check and activation requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"}, // call: version/activate
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		DeviceState,
		ClockTicks,
		TasksExecuted,
		WiFiConnectAttempts,
		WiFiDisconnects,
		ProvisioningEvents,
		SessionMessages,
		CapabilityCommands,
		HTTPRequestLatency,
	)
}

// SetDeviceState marks state as the active one among known.
func SetDeviceState(state string, known []string) {
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		DeviceState.WithLabelValues(s).Set(v)
	}
}
