package config

import "time"

// Reward Distribution
const (
	// DistributionPeriod is the minimum interval between two reward credits
	// for the same position. Periods are keyed by calendar month.
	DistributionPeriod = 30 * 24 * time.Hour

	// PeriodKeyLayout formats the calendar-month period key (time.Format layout).
	PeriodKeyLayout = "2006-01"

	DistributionInterval = 24 * time.Hour // scheduler check cadence
)

// Chain-default reward structures, applied when a contract is created
// without an explicit schedule: tickets per month / bonus multiplier.
const (
	DefaultSixMonthTickets       = 5
	DefaultSixMonthMultiplier    = 1.1
	DefaultTwelveMonthTickets    = 12
	DefaultTwelveMonthMultiplier = 1.25
	DefaultThirtySixMonthTickets = 30
	DefaultThirtySixMultiplier   = 1.5
)

// Gateway
const (
	GatewayCallTimeout  = 30 * time.Second
	GatewayRetryCount   = 3
	GatewayRetryDelay   = 2 * time.Second
	GatewayRateLimitRPS = 5 // per-chain outbound call budget
)

// Admin Operations
const (
	// MinEmergencyReasonLen is the minimum audit reason length for admin
	// unlock and emergency withdraw.
	MinEmergencyReasonLen = 10
)

// Reconciliation
const (
	ReconcileInterval = 6 * time.Hour

	// ReconcileAlertThreshold is the consistency score (percent) below which
	// a run is logged at error level for operational review.
	ReconcileAlertThreshold = 95.0
)

// Migration
const (
	MigrationMaxBatchSize = 100
	MigrationBatchDelay   = 2 * time.Second
	MigrationMaxRetries   = 3
	MigrationRetryDelay   = 5 * time.Second
)

// Duration codes used by the on-chain staking contracts. The contract encodes
// terms as small integers rather than month counts.
const (
	DurationCodeSixMonths       = 0
	DurationCodeTwelveMonths    = 1
	DurationCodeThirtySixMonths = 2
)

// Server
const (
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 60 * time.Second
	APITimeout         = 30 * time.Second
)

// Logging
const (
	LogFilePattern = "nftstake-%s.log" // %s = YYYY-MM-DD
	LogMaxAgeDays  = 30
)

// Database
const (
	DBBusyTimeout = 5000 // milliseconds
)
