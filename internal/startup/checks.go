// internal/startup/checks.go
package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Check names, stable across runs.
const (
	CheckEnvironmentVariables = "environment_variables"
	CheckConfiguration        = "configuration"
	CheckFilePermissions      = "file_permissions"
	CheckDatabaseConnection   = "database_connection"
	CheckRedis                = "redis"
	CheckClickHouse           = "clickhouse"
	CheckLLMProviders         = "llm_providers"
	CheckMemoryResources      = "memory_resources"
	CheckNetworkConnectivity  = "network_connectivity"
	CheckAssistantBootstrap   = "assistant_bootstrap"
	CheckConnectionPoolWarmup = "connection_pool_warmup"
)

// expectedTables are probed by the database check. Only the assistants
// table is load-bearing; the rest are advisory.
var expectedTables = []string{"assistants", "threads", "messages", "agents", "usage_events"}

const criticalTable = "assistants"

var optionalEnvVars = []struct {
	name  string
	value func(c *Checker) string
}{
	{"REDIS_URL", func(c *Checker) string { return c.cfg.RedisURL }},
	{"CLICKHOUSE_URL", func(c *Checker) string { return c.cfg.ClickHouseURL }},
	{"ANTHROPIC_API_KEY", func(c *Checker) string { return c.cfg.AnthropicAPIKey }},
}

// checkEnvironmentVariables verifies required variables for the
// environment. Development permits defaults; everywhere else
// SECRET_KEY is required. Optional variables never fail the check.
func (c *Checker) checkEnvironmentVariables(ctx context.Context) CheckResult {
	var missing []string
	if !c.cfg.IsDevelopment() && c.cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	if len(missing) > 0 {
		return Failed(CheckEnvironmentVariables,
			"Missing required environment variables: "+strings.Join(missing, ", "))
	}

	var absentOptional []string
	for _, v := range optionalEnvVars {
		if v.value(c) == "" {
			absentOptional = append(absentOptional, v.name)
		}
	}

	msg := "All required environment variables present"
	if c.cfg.IsDevelopment() {
		msg = "Running in development mode, defaults permitted"
	}
	if len(absentOptional) > 0 {
		msg += "; optional variables not set: " + strings.Join(absentOptional, ", ")
	}
	return Passed(CheckEnvironmentVariables, msg)
}

// checkConfiguration validates the loaded configuration.
func (c *Checker) checkConfiguration(ctx context.Context) CheckResult {
	if err := c.cfg.Validate(); err != nil {
		return Failed(CheckConfiguration, fmt.Sprintf("Configuration invalid: %v", err))
	}
	return Passed(CheckConfiguration,
		fmt.Sprintf("Configuration valid for environment %q", c.cfg.Environment))
}

// checkFilePermissions probes the temp directory for write access.
func (c *Checker) checkFilePermissions(ctx context.Context) CheckResult {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("netra-startup-%d", os.Getpid()))
	if err := os.WriteFile(path, []byte("probe"), 0o600); err != nil {
		return Failed(CheckFilePermissions,
			fmt.Sprintf("Cannot write to temp directory: %v", err))
	}
	_ = os.Remove(path)
	return Passed(CheckFilePermissions, "Filesystem writable")
}

// checkDatabaseConnection probes the primary database. Mock mode
// short-circuits to a non-critical success regardless of any real
// database state.
func (c *Checker) checkDatabaseConnection(ctx context.Context) CheckResult {
	if c.cfg.MockMode() || c.sctx.MockMode {
		return Passed(CheckDatabaseConnection,
			"Database running in mock mode, connectivity not verified").NonCritical()
	}

	if c.sctx.DB == nil {
		return Failed(CheckDatabaseConnection, "No database capability configured")
	}

	if err := c.sctx.DB.Ping(ctx); err != nil {
		return Failed(CheckDatabaseConnection,
			fmt.Sprintf("Database connectivity probe failed: %v", err))
	}

	var missingAdvisory []string
	for _, table := range expectedTables {
		exists, err := c.sctx.DB.TableExists(ctx, table)
		if err != nil {
			return Failed(CheckDatabaseConnection,
				fmt.Sprintf("Table check failed for %s: %v", table, err))
		}
		if exists {
			continue
		}
		if table == criticalTable {
			return Failed(CheckDatabaseConnection,
				fmt.Sprintf("Required table %q is missing", criticalTable))
		}
		missingAdvisory = append(missingAdvisory, table)
	}

	msg := "Database connected, all expected tables present"
	if len(missingAdvisory) > 0 {
		msg = "Database connected; missing advisory tables: " + strings.Join(missingAdvisory, ", ")
	}
	return Passed(CheckDatabaseConnection, msg)
}

// checkRedis probes the optional cache service.
func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.sctx.Redis == nil {
		return Passed(CheckRedis, "Redis not configured, skipping").NonCritical()
	}
	if err := c.sctx.Redis.Ping(ctx); err != nil {
		return Failed(CheckRedis, fmt.Sprintf("Redis probe failed: %v", err)).NonCritical()
	}
	return Passed(CheckRedis, "Redis reachable")
}

// checkClickHouse probes the optional analytics store.
func (c *Checker) checkClickHouse(ctx context.Context) CheckResult {
	if c.sctx.ClickHouse == nil {
		return Passed(CheckClickHouse, "ClickHouse not configured, skipping").NonCritical()
	}
	if err := c.sctx.ClickHouse.Ping(ctx); err != nil {
		return Failed(CheckClickHouse, fmt.Sprintf("ClickHouse probe failed: %v", err)).NonCritical()
	}
	return Passed(CheckClickHouse, "ClickHouse reachable")
}

// checkLLMProviders resolves every configured provider. A provider that
// errors counts as failed; a nil client is optional-and-absent; zero
// available providers fails the check, critical only in production.
func (c *Checker) checkLLMProviders(ctx context.Context) CheckResult {
	names := make([]string, 0, len(c.cfg.LLMConfigs))
	for name := range c.cfg.LLMConfigs {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return Passed(CheckLLMProviders, "No LLM providers configured").NonCritical()
	}

	if c.sctx.LLM == nil {
		result := Failed(CheckLLMProviders, "LLM providers configured but no registry wired")
		if !c.cfg.IsProduction() {
			result = result.NonCritical()
		}
		return result
	}

	var available, failed []string
	for _, name := range names {
		client, err := c.sctx.LLM.GetLLM(ctx, name)
		switch {
		case err != nil:
			failed = append(failed, fmt.Sprintf("%s (%v)", name, err))
		case client != nil:
			available = append(available, name)
		}
		// nil client without error: optional provider, absent
	}

	switch {
	case len(available) == 0:
		result := Failed(CheckLLMProviders,
			"No LLM providers available; failed: "+strings.Join(failed, ", "))
		if !c.cfg.IsProduction() {
			result = result.NonCritical()
		}
		return result
	case len(failed) > 0:
		return Passed(CheckLLMProviders, fmt.Sprintf(
			"Partial LLM availability: %s available, failed: %s",
			strings.Join(available, ", "), strings.Join(failed, ", ")))
	default:
		return Passed(CheckLLMProviders,
			"All LLM providers available: "+strings.Join(available, ", "))
	}
}

// checkMemoryResources samples memory pressure. A diagnostic failure is
// never a startup blocker.
func (c *Checker) checkMemoryResources(ctx context.Context) CheckResult {
	vm, err := c.virtualMemory()
	if err != nil {
		return CheckResult{
			Name:    CheckMemoryResources,
			Success: true,
			Message: fmt.Sprintf("Could not check resources: %v", err),
			Status:  StatusPassed,
		}
	}

	msg := fmt.Sprintf("Memory usage %.1f%% (%d MB available)",
		vm.UsedPercent, vm.Available/(1024*1024))
	if vm.UsedPercent > 90 {
		msg += "; memory pressure high"
	}
	return Passed(CheckMemoryResources, msg).NonCritical()
}

// checkNetworkConnectivity resolves a well-known host.
func (c *Checker) checkNetworkConnectivity(ctx context.Context) CheckResult {
	if _, err := c.lookupHost(ctx, "dns.google"); err != nil {
		return Failed(CheckNetworkConnectivity,
			fmt.Sprintf("DNS resolution failed: %v", err)).NonCritical()
	}
	return Passed(CheckNetworkConnectivity, "Outbound DNS resolution working")
}

// checkAssistantBootstrap ensures the default assistant record exists.
// Its absence must never block startup, so any failure here is
// non-critical.
func (c *Checker) checkAssistantBootstrap(ctx context.Context) CheckResult {
	if c.sctx.Bootstrap == nil {
		return Passed(CheckAssistantBootstrap, "Assistant bootstrap not configured, skipping").NonCritical()
	}
	if err := c.sctx.Bootstrap.EnsureDefaultAssistant(ctx); err != nil {
		return Failed(CheckAssistantBootstrap,
			fmt.Sprintf("Assistant bootstrap failed: %v", err)).NonCritical()
	}
	return Passed(CheckAssistantBootstrap, "Default assistant present")
}

// checkConnectionPoolWarmup pre-touches the database pool so the first
// real request does not pay the connection setup cost. Runs in the
// background tier after the critical path completes.
func (c *Checker) checkConnectionPoolWarmup(ctx context.Context) CheckResult {
	if c.sctx.DB == nil || c.cfg.MockMode() || c.sctx.MockMode {
		return Passed(CheckConnectionPoolWarmup, "No pool to warm").NonCritical()
	}
	for i := 0; i < 3; i++ {
		if err := c.sctx.DB.Ping(ctx); err != nil {
			return Failed(CheckConnectionPoolWarmup,
				fmt.Sprintf("Warmup ping failed: %v", err)).NonCritical()
		}
	}
	return Passed(CheckConnectionPoolWarmup, "Connection pool warmed").NonCritical()
}
