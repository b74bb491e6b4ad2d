package common

const (
	KEY_QUOTE            = "quote:%s"
	KEY_LIQUIDITY        = "liquidity:%s"
	KEY_STRATEGY_VERSION = "strategy_version:%s"
)

const (
	COMPONENT_MONITOR   = "monitor"
	COMPONENT_EXECUTOR  = "executor"
	COMPONENT_RECONCILE = "reconciler"
)

const (
	ALERT_SEVERITY_HIGH     = "HIGH"
	ALERT_SEVERITY_CRITICAL = "CRITICAL"
)

const (
	ALERT_STALE_DATA          = "stale_data"
	ALERT_EXIT_EXHAUSTED      = "exit_exhausted"
	ALERT_CIRCUIT_BREAKER     = "circuit_breaker"
	ALERT_INVARIANT_VIOLATION = "invariant_violation"
)
