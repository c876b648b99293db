package constants

const (
	DefaultHealthCheckEndpoint = "/internal/health"
	DefaultMetricsPath         = "/metrics"
	DefaultStatusPath          = "/status"
	DefaultPathPrefix          = "/"
)
