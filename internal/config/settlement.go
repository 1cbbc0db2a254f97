package config

import (
	"os"

	"github.com/shopspring/decimal"
)

type SettlementConfig struct {
	// BalancedThreshold is the imbalance (EUR) below which an associate is
	// reported as balanced in reconciliation and mismatch views.
	BalancedThreshold decimal.Decimal
	// MajorMismatchThreshold separates minor from major bookmaker
	// balance mismatches (EUR).
	MajorMismatchThreshold decimal.Decimal
	// Tolerance is the residual imbalance (EUR) accepted after an exit
	// settlement has been posted.
	Tolerance    decimal.Decimal
	ReceiptsDir  string
	ModelVersion string
}

func LoadSettlementConfig() *SettlementConfig {
	return &SettlementConfig{
		BalancedThreshold:      getEnvAsDecimal("SETTLEMENT_BALANCED_THRESHOLD", "10"),
		MajorMismatchThreshold: getEnvAsDecimal("SETTLEMENT_MAJOR_THRESHOLD", "50"),
		Tolerance:              getEnvAsDecimal("SETTLEMENT_TOLERANCE", "0.01"),
		ReceiptsDir:            getEnv("SETTLEMENT_RECEIPTS_DIR", "./receipts"),
		ModelVersion:           getEnv("SETTLEMENT_MODEL_VERSION", "nd-fs-v2"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsDecimal(key, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultVal)
}
