package models

// Error classifications carried in ErrorResponse.Error.
const (
	ErrorValidation        = "ValidationError"
	ErrorAuth              = "AuthError"
	ErrorForbidden         = "Forbidden"
	ErrorNotFound          = "NotFoundError"
	ErrorConflict          = "Conflict"
	ErrorLedgerRejected    = "LedgerRejected"
	ErrorLedgerUnreachable = "LedgerUnreachable"
	ErrorConfiguration     = "ConfigurationError"
	ErrorInternal          = "InternalError"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse reports service and ledger liveness
type HealthResponse struct {
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	// Timestamp is the latest block time, RFC3339
	Timestamp string `json:"timestamp"`
}

// SetContractRequest points the service at a deployed contract
type SetContractRequest struct {
	Address string `json:"address"`
}

type ContractResponse struct {
	Address string `json:"address"`
	Schema  string `json:"schema"`
}
