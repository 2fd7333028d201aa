package types

// GenerateRequest represents a text-generation request payload.
type GenerateRequest struct {
	// Required input text to continue.
	// example: Hello, my name is
	Text string `json:"text" example:"Hello, my name is"`
	// Maximum total length of the generated sequence, in tokens.
	// Must be positive and at or below the server's configured ceiling.
	// example: 100
	MaxLength int `json:"max_length" example:"100"`
}

// GenerateResponse wraps the generated text returned by POST /generate/.
type GenerateResponse struct {
	// Generated continuation, including the input text.
	// example: Hello, my name is Ada and I work on compilers.
	GeneratedText string `json:"generated_text" example:"Hello, my name is Ada and I work on compilers."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Configured model identifier.
	// example: org/tiny-model
	ModelID string `json:"model_id" example:"org/tiny-model"`
	// Current model lifecycle state (unloaded, loading, ready, failed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Local cache path of the model weights, once resolved.
	// example: /mnt/disks/model-cache/org--tiny-model
	LocalPath string `json:"local_path,omitempty" example:"/mnt/disks/model-cache/org--tiny-model"`
	// Last load error observed, if any. Non-empty only in state "failed".
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
