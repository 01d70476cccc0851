package logger

// Standard field keys used across the codebase. Using constants keeps log
// output consistent and greppable.
const (
	KeyRequestID = "request_id"
	KeyShare     = "share"
	KeyClientIP  = "client_ip"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyBytes     = "bytes"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
	KeyListener  = "listener"
	KeyOperation = "operation"
)
