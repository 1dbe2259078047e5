package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"coop-ledger/internal/domain/gateway"
	"coop-ledger/internal/domain/policy"
	"coop-ledger/pkg/money"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	AppPort  string
	LogLevel string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempTTL       time.Duration
	NotifyPrefix   string
	BatchLockTTL   time.Duration
	DisburseCron   string
	LiquidateCron  string
	DistributeCron string

	Policy  policy.Policy
	Gateway gateway.Table
}

func setDefaults(v *viper.Viper) {
	p := policy.Default()

	v.SetDefault("app_port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("mysql_host", "mysql")
	v.SetDefault("mysql_port", "3306")
	v.SetDefault("mysql_db", "coop")
	v.SetDefault("mysql_user", "coop")
	v.SetDefault("mysql_pass", "coop")

	v.SetDefault("redis_addr", "redis:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("notify_channel_prefix", "coop:notify:")
	v.SetDefault("batch_lock_ttl", "10m")
	// Empty disables the schedule; the batch stays reachable over HTTP.
	v.SetDefault("disbursement_cron", "*/15 * * * *")
	v.SetDefault("liquidation_cron", "0 2 * * *")
	v.SetDefault("distribution_cron", "0 3 1 * *")

	v.SetDefault("quota_unit_price", p.Credit.UnitPrice.String())
	v.SetDefault("credit_tiers", "0:1.2,10:1.5,50:2.0,100:3.0")
	v.SetDefault("interest_rate", p.Credit.InterestRate.String())
	v.SetDefault("term_days", p.Credit.TermDays)
	v.SetDefault("max_installments", p.Credit.MaxInstallments)
	v.SetDefault("fee_profit_share", p.Fees.FeeSplit.ProfitShare.String())
	v.SetDefault("withdrawal_fee_profit_share", p.Fees.WithdrawalFeeSplit.ProfitShare.String())
	v.SetDefault("withdrawal_fixed_fee", p.Fees.WithdrawalFixedFee.String())
	v.SetDefault("withdrawal_rate", p.Fees.WithdrawalRate.String())
	v.SetDefault("withdrawal_min_fee", p.Fees.WithdrawalMinFee.String())
	v.SetDefault("quota_admin_fee", p.Fees.QuotaAdminFee.String())
	v.SetDefault("referral_bonus", p.Fees.ReferralBonus.String())
	v.SetDefault("upgrade_price", p.Fees.UpgradePrice.String())
	v.SetDefault("liquidation_grace", p.Liquidation.Grace.String())
	v.SetDefault("distribution_holder_share", p.Distribution.HolderShare.String())

	v.SetDefault("gateway_pix_percent", "0.01")
	v.SetDefault("gateway_pix_fixed", "0.00")
	v.SetDefault("gateway_card_percent", "0.0399")
	v.SetDefault("gateway_card_fixed", "0.39")
}

// Load reads defaults, then CONFIG_FILE when set, then the environment.
// Environment variables are the upper-case keys, e.g. MYSQL_HOST.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	}

	c := &Config{
		AppPort:  v.GetString("app_port"),
		LogLevel: v.GetString("log_level"),

		MySQLHost: v.GetString("mysql_host"),
		MySQLPort: v.GetString("mysql_port"),
		MySQLDB:   v.GetString("mysql_db"),
		MySQLUser: v.GetString("mysql_user"),
		MySQLPass: v.GetString("mysql_pass"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		IdempTTL:       v.GetDuration("idempotency_ttl"),
		NotifyPrefix:   v.GetString("notify_channel_prefix"),
		BatchLockTTL:   v.GetDuration("batch_lock_ttl"),
		DisburseCron:   v.GetString("disbursement_cron"),
		LiquidateCron:  v.GetString("liquidation_cron"),
		DistributeCron: v.GetString("distribution_cron"),
	}

	var err error
	if c.Policy, err = buildPolicy(v); err != nil {
		return nil, err
	}
	if c.Gateway, err = buildGateway(v); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.IdempTTL <= 0 || c.BatchLockTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL and BATCH_LOCK_TTL must be positive")
	}
	for name, spec := range map[string]string{
		"DISBURSEMENT_CRON": c.DisburseCron,
		"LIQUIDATION_CRON":  c.LiquidateCron,
		"DISTRIBUTION_CRON": c.DistributeCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	for name, r := range map[string]decimal.Decimal{
		"FEE_PROFIT_SHARE":            c.Policy.Fees.FeeSplit.ProfitShare,
		"WITHDRAWAL_FEE_PROFIT_SHARE": c.Policy.Fees.WithdrawalFeeSplit.ProfitShare,
		"DISTRIBUTION_HOLDER_SHARE":   c.Policy.Distribution.HolderShare,
	} {
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be within [0, 1], got %s", name, r)
		}
	}
	if c.Policy.Credit.UnitPrice <= 0 {
		return errors.New("QUOTA_UNIT_PRICE must be positive")
	}
	if c.Policy.Credit.MaxInstallments < 1 || c.Policy.Credit.TermDays < 1 {
		return errors.New("MAX_INSTALLMENTS and TERM_DAYS must be at least 1")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime is needed for DATETIME columns
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// reader collects the first parse error so the builders stay flat.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) ratio(key string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.v.GetString(key)))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return d
}

func (r *reader) money(key string) money.Cents {
	c, err := money.Parse(strings.TrimSpace(r.v.GetString(key)))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return c
}

func (r *reader) duration(key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(r.v.GetString(key)))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return d
}

func buildPolicy(v *viper.Viper) (policy.Policy, error) {
	r := &reader{v: v}
	p := policy.Default()

	p.Credit.UnitPrice = r.money("quota_unit_price")
	p.Credit.InterestRate = r.ratio("interest_rate")
	p.Credit.TermDays = v.GetInt("term_days")
	p.Credit.MaxInstallments = v.GetInt("max_installments")
	tiers, err := parseTiers(v.GetString("credit_tiers"))
	if err != nil {
		return p, fmt.Errorf("CREDIT_TIERS: %w", err)
	}
	p.Credit.Tiers = tiers

	p.Fees.FeeSplit.ProfitShare = r.ratio("fee_profit_share")
	p.Fees.WithdrawalFeeSplit.ProfitShare = r.ratio("withdrawal_fee_profit_share")
	p.Fees.WithdrawalFixedFee = r.money("withdrawal_fixed_fee")
	p.Fees.WithdrawalRate = r.ratio("withdrawal_rate")
	p.Fees.WithdrawalMinFee = r.money("withdrawal_min_fee")
	p.Fees.QuotaAdminFee = r.money("quota_admin_fee")
	p.Fees.ReferralBonus = r.money("referral_bonus")
	p.Fees.UpgradePrice = r.money("upgrade_price")

	p.Liquidation.Grace = r.duration("liquidation_grace")
	p.Distribution.HolderShare = r.ratio("distribution_holder_share")
	return p, r.err
}

// parseTiers reads "minUnits:multiplier" pairs separated by commas.
func parseTiers(raw string) ([]policy.Tier, error) {
	var tiers []policy.Tier
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		units, mult, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("tier %q: want minUnits:multiplier", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(units), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("tier %q: bad unit count", part)
		}
		m, err := decimal.NewFromString(strings.TrimSpace(mult))
		if err != nil || m.IsNegative() {
			return nil, fmt.Errorf("tier %q: bad multiplier", part)
		}
		tiers = append(tiers, policy.Tier{MinUnits: n, Multiplier: m})
	}
	if len(tiers) == 0 {
		return nil, errors.New("no tiers")
	}
	return tiers, nil
}

func buildGateway(v *viper.Viper) (gateway.Table, error) {
	r := &reader{v: v}
	t := gateway.Table{
		gateway.Pix:  {Percent: r.ratio("gateway_pix_percent"), Fixed: r.money("gateway_pix_fixed")},
		gateway.Card: {Percent: r.ratio("gateway_card_percent"), Fixed: r.money("gateway_card_fixed")},
	}
	return t, r.err
}
