package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CreditThresholds are utilization ratios (balance+projected)/limit.
type CreditThresholds struct {
	WarnAt      decimal.Decimal
	SoftBlockAt decimal.Decimal
	HardBlockAt decimal.Decimal
}

// FinancePolicy holds the tunable business constants of the finance core.
type FinancePolicy struct {
	Credit               CreditThresholds
	BranchCommissionRate decimal.Decimal
	BaseCurrency         string
	RateCacheTTL         time.Duration
	RateRefreshInterval  time.Duration
}

var policyDefaults = map[string]string{
	"credit.warn_at":                    "0.80",
	"credit.soft_block_at":              "0.95",
	"credit.hard_block_at":              "1.00",
	"settlement.branch_commission_rate": "0.15",
	"currency.base":                     "USD",
	"currency.cache_ttl":                "10m",
	"currency.refresh_interval":         "1h",
}

func DefaultFinancePolicy() FinancePolicy {
	p, err := financePolicyFrom(newPolicyViper())
	if err != nil {
		panic(err)
	}
	return p
}

func newPolicyViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FINANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range policyDefaults {
		v.SetDefault(k, val)
	}
	return v
}

// LoadFinancePolicy reads defaults, then the optional config file, then
// FINANCE_* env vars (e.g. FINANCE_CREDIT_WARN_AT).
func LoadFinancePolicy(configFile string) (FinancePolicy, error) {
	v := newPolicyViper()
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return FinancePolicy{}, fmt.Errorf("read finance policy %s: %w", configFile, err)
		}
	}
	p, err := financePolicyFrom(v)
	if err != nil {
		return FinancePolicy{}, err
	}
	return p, p.Validate()
}

func financePolicyFrom(v *viper.Viper) (FinancePolicy, error) {
	var p FinancePolicy
	var err error
	if p.Credit.WarnAt, err = decimalKey(v, "credit.warn_at"); err != nil {
		return p, err
	}
	if p.Credit.SoftBlockAt, err = decimalKey(v, "credit.soft_block_at"); err != nil {
		return p, err
	}
	if p.Credit.HardBlockAt, err = decimalKey(v, "credit.hard_block_at"); err != nil {
		return p, err
	}
	if p.BranchCommissionRate, err = decimalKey(v, "settlement.branch_commission_rate"); err != nil {
		return p, err
	}
	p.BaseCurrency = strings.ToUpper(strings.TrimSpace(v.GetString("currency.base")))
	p.RateCacheTTL = v.GetDuration("currency.cache_ttl")
	p.RateRefreshInterval = v.GetDuration("currency.refresh_interval")
	return p, nil
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("finance policy %s: %w", key, err)
	}
	return d, nil
}

func (p FinancePolicy) Validate() error {
	c := p.Credit
	if !c.WarnAt.IsPositive() || !c.WarnAt.LessThan(c.SoftBlockAt) || c.SoftBlockAt.GreaterThan(c.HardBlockAt) {
		return fmt.Errorf("finance policy: credit thresholds must satisfy 0 < warn(%s) < soft(%s) <= hard(%s)",
			c.WarnAt, c.SoftBlockAt, c.HardBlockAt)
	}
	if p.BranchCommissionRate.IsNegative() || p.BranchCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("finance policy: branch commission rate %s outside [0, 1]", p.BranchCommissionRate)
	}
	if len(p.BaseCurrency) != 3 {
		return errors.New("finance policy: base currency must be a 3-letter code")
	}
	if p.RateCacheTTL <= 0 {
		return errors.New("finance policy: currency cache ttl must be positive")
	}
	return nil
}
