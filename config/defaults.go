package config

import "time"

// Default analysis parameters and runtime guardrails for the CHI analyzer.
// They are referenced by internal/runtime, internal/insights and the CLI and can
// be overridden by the YAML config file, CHI_* env vars or flags.

const (
	// Classification
	DefaultThreshold      = 42.0
	DefaultCurrentSheet   = "Sheet1"
	DefaultHeaderScanRows = 20

	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenWorkbooks      = 4
	DefaultMaxAssistantCalls     = 1

	// Payload and row limits
	DefaultMaxRowsPerSheet = 50_000
	DefaultPageSize        = 50
	DefaultMaxPageSize     = 500
	DefaultMaxSheetName    = 31
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultSummaryTimeout        = 30 * time.Second
	DefaultChatTimeout           = 90 * time.Second
	DefaultStatusProbeTimeout    = 5 * time.Second
	DefaultLoginProbeTimeout     = 3 * time.Second
	DefaultLogoutTimeout         = 30 * time.Second

	// Workbook handle cache
	DefaultWorkbookIdleTTL       = 10 * time.Minute
	DefaultWorkbookCleanupPeriod = time.Minute

	// Assistant status cache
	DefaultStatusCacheTTL = 600 * time.Second
)

const (
	// Assistant
	DefaultProvider          = "qcli"
	DefaultQCLIBinary        = "q"
	DefaultMaxTokens         = 1024
	DefaultSummaryContextLen = 2000
	DefaultChatHistoryKeep   = 20
)
