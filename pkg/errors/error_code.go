package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidQuantity      ErrorCode = 103
	ErrCodeInvalidPrice         ErrorCode = 104
	ErrCodeInvalidType          ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106
	ErrCodeInvalidHistoryLength ErrorCode = 107
	ErrCodeInvalidThreshold     ErrorCode = 108
	ErrCodeVersionMismatch      ErrorCode = 109

	// Market data errors (200-299)
	ErrCodeNoQuote                 ErrorCode = 200
	ErrCodeEmptyBook               ErrorCode = 201
	ErrCodeQuoteFetchFailed        ErrorCode = 202
	ErrCodeProviderUnavailable     ErrorCode = 203
	ErrCodeStatisticsNotReady      ErrorCode = 204
	ErrCodeUnsupportedProvider     ErrorCode = 205
	ErrCodeProviderNotOrderCapable ErrorCode = 206

	// Trading errors (500-599)
	ErrCodeOrderFailed      ErrorCode = 500
	ErrCodeOrderRejected    ErrorCode = 501
	ErrCodePartialFill      ErrorCode = 502
	ErrCodeCancelFailed     ErrorCode = 503
	ErrCodeCompensateFailed ErrorCode = 504
	ErrCodePositionNotFound ErrorCode = 505

	// Ledger/reconciliation errors (600-699)
	ErrCodeUnbalancedPosition  ErrorCode = 600
	ErrCodeReconcileAborted    ErrorCode = 601
	ErrCodeLedgerFrozen        ErrorCode = 602
	ErrCodeDeltaOutOfTolerance ErrorCode = 603

	// Journal errors (700-799)
	ErrCodeJournalInitFailed  ErrorCode = 700
	ErrCodeJournalWriteFailed ErrorCode = 701
	ErrCodeJournalQueryFailed ErrorCode = 702

	// Engine and callback errors (800-899)
	ErrCodeEngineInitFailed ErrorCode = 800
	ErrCodeCallbackFailed   ErrorCode = 801
)
