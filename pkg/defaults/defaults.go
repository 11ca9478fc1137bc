// Package defaults provides canonical default values for authscan.
// Counts, names and budgets used by more than one package live here so the
// orchestrator, the config loader and the CLI agree on them.
//
// Usage:
//
//	cfg.Spider.MaxDepth = defaults.SpiderMaxDepth
//	req.Header.Set("Content-Type", defaults.ContentTypeJSON)
package defaults

// ToolName is the service name used in logs, traces and metrics.
const ToolName = "authscan"

// Version is the current authscan version.
const Version = "1.3.0"

// ============================================================================
// ENGINE API
// ============================================================================

const (
	// EngineURL is the default engine control API address.
	EngineURL = "http://127.0.0.1:8080"

	// EngineAPIKeyHeader carries the engine API key on every request.
	EngineAPIKeyHeader = "X-ZAP-API-Key"

	// EngineRPS bounds calls per second to the engine control API.
	EngineRPS = 10

	// AlertPageSize is the page size used when paging the alerts view.
	AlertPageSize = 5000
)

// ============================================================================
// CRAWL / ATTACK BOUNDS
// ============================================================================

const (
	// SpiderMaxDepth bounds the depth-first crawler.
	SpiderMaxDepth = 5

	// SpiderMaxChildren bounds discovered nodes per parent (0 = unlimited).
	SpiderMaxChildren = 50

	// SpiderThreads is the crawler thread count.
	SpiderThreads = 5

	// AjaxMaxDepth bounds the JS-executing crawler.
	AjaxMaxDepth = 5

	// AjaxBrowsers is the browser-pool size of the JS-executing crawler.
	AjaxBrowsers = 2

	// ActiveThreadsPerHost bounds attack concurrency against the target.
	ActiveThreadsPerHost = 4

	// ActiveDelayMs is the inter-request delay of the attacker.
	ActiveDelayMs = 0

	// StuckPolls is how many consecutive unchanged active-scan polls mark a
	// scan as stuck (5 minutes at 5-second polls).
	StuckPolls = 60

	// MaxPollErrors is how many consecutive failed status polls fail a phase.
	MaxPollErrors = 5
)

// ============================================================================
// RETRY
// ============================================================================

const (
	// RetryAttempts is the total number of attempts for transition calls.
	RetryAttempts = 3
)

// ============================================================================
// RESULT SHAPING
// ============================================================================

const (
	// SummaryDescriptionRunes is the description budget in summary views.
	SummaryDescriptionRunes = 300

	// SummarySolutionRunes is the solution budget in summary views.
	SummarySolutionRunes = 200

	// SummarySampleURLs is the number of sample URLs in summary views.
	SummarySampleURLs = 5

	// Ellipsis terminates truncated summary text.
	Ellipsis = "..."
)

// ============================================================================
// CONTENT TYPES
// ============================================================================

const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html"
)

// ============================================================================
// SERVICE
// ============================================================================

const (
	// Listen is the default HTTP trigger address.
	Listen = "127.0.0.1:8088"

	// Database is the default SQLite file for sessions and handles.
	Database = "authscan.db"

	// BlobDir is the default artifact directory.
	BlobDir = "artifacts"

	// OwnerHeader carries the caller's identity on inbound requests.
	OwnerHeader = "X-Owner-ID"

	// MaxRequestBody bounds inbound JSON bodies.
	MaxRequestBody = 1 << 20
)
