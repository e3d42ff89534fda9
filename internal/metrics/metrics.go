package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskengine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	// WebSocket метрики
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)

	// MQTT метрики
	MQTTMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_mqtt_messages_received_total",
			Help: "Total number of MQTT fix messages received",
		},
	)

	MQTTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_mqtt_parse_errors_total",
			Help: "Total number of MQTT message parse errors",
		},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskengine_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	TaskCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_task_cache_total",
			Help: "Task definition cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	// MySQL метрики
	MySQLWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_mysql_write_errors_total",
			Help: "Total number of MySQL write errors",
		},
	)

	ResultsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_results_saved_total",
			Help: "Total number of finished task results archived",
		},
	)

	// Метрики вычислителя
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_updates_total",
			Help: "Total number of aircraft state updates by task mode",
		},
		[]string{"mode"},
	)

	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskengine_update_duration_seconds",
			Help:    "Duration of task manager updates in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"pass"}, // update, idle, auto_mc
	)

	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_transitions_total",
			Help: "Task transitions by kind",
		},
		[]string{"kind"}, // advance, start, finish, enter, exit, arm_request
	)

	TaskMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskengine_task_mode",
			Help: "Current task manager mode (1 for the active mode)",
		},
		[]string{"mode"},
	)

	ActiveTaskPoint = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_active_task_point",
			Help: "Index of the active task point",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_stream_subscribers",
			Help: "Number of snapshot subscribers",
		},
	)

	SnapshotsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_snapshots_dropped_total",
			Help: "Snapshots dropped for slow subscribers",
		},
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_persist_queue_depth",
			Help: "Task results waiting to be archived",
		},
	)

	PersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_persist_errors_total",
			Help: "Persistence failures by kind",
		},
		[]string{"kind"}, // snapshot, result
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskengine_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)

	MySQLConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_mysql_connection_status",
			Help: "MySQL connection status (1 = connected, 0 = disconnected)",
		},
	)

	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_redis_connection_status",
			Help: "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// SetMode отмечает активный режим менеджера
func SetMode(active string, all []string) {
	for _, m := range all {
		v := 0.0
		if m == active {
			v = 1
		}
		TaskMode.WithLabelValues(m).Set(v)
	}
}
