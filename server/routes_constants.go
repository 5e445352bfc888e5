package server

// Route path constants
const (
	// App session exchange. The parent session bearer identifies the user.
	RouteAppSession = "/apps/{appId}/session"

	// Operational routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
