// Package health defines the wire format of the /health endpoint,
// shared between the server handler and the status command.
package health

// Details carries service identity and uptime inside a Response.
type Details struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_sec"`
}

// Response is the JSON body served on /health.
type Response struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Data      Details `json:"data"`
	Error     string  `json:"error,omitempty"`
}
