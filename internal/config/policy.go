package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type OverrideBase string

const (
	OverrideBaseSaleAmount       OverrideBase = "sale_amount"
	OverrideBaseDirectCommission OverrideBase = "direct_commission"
)

type SelfReferralMode string

const (
	SelfReferralNoCommission SelfReferralMode = "no_commission"
	SelfReferralPay          SelfReferralMode = "pay"
	SelfReferralReject       SelfReferralMode = "reject"
)

// Policy is the commission configuration applied to a single sale. Callers
// take one snapshot per sale and pass it down explicitly.
type Policy struct {
	MaxOverrideDepth      int
	MaxPayoutRatio        decimal.Decimal
	OverrideBase          OverrideBase
	SelfReferral          SelfReferralMode
	DefaultLinkPercentage decimal.Decimal
	MinimumCommission     int64
}

var (
	ErrInvalidMaxOverrideDepth = errors.New("commission.max_override_depth must be between 0 and 32")
	ErrInvalidMaxPayoutRatio   = errors.New("commission.max_payout_ratio must be in (0, 1]")
	ErrInvalidOverrideBase     = errors.New("commission.override_base must be sale_amount or direct_commission")
	ErrInvalidSelfReferral     = errors.New("commission.self_referral must be no_commission, pay or reject")
	ErrInvalidLinkPercentage   = errors.New("commission.default_link_percentage must be between 0 and 100")
	ErrInvalidMinimum          = errors.New("commission.minimum_commission must not be negative")
)

func DefaultPolicy() Policy {
	return Policy{
		MaxOverrideDepth:      3,
		MaxPayoutRatio:        decimal.RequireFromString("0.5"),
		OverrideBase:          OverrideBaseSaleAmount,
		SelfReferral:          SelfReferralNoCommission,
		DefaultLinkPercentage: decimal.NewFromInt(10),
		MinimumCommission:     1,
	}
}

func (p Policy) Validate() error {
	if p.MaxOverrideDepth < 0 || p.MaxOverrideDepth > 32 {
		return ErrInvalidMaxOverrideDepth
	}
	if !p.MaxPayoutRatio.IsPositive() || p.MaxPayoutRatio.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidMaxPayoutRatio
	}
	switch p.OverrideBase {
	case OverrideBaseSaleAmount, OverrideBaseDirectCommission:
	default:
		return ErrInvalidOverrideBase
	}
	switch p.SelfReferral {
	case SelfReferralNoCommission, SelfReferralPay, SelfReferralReject:
	default:
		return ErrInvalidSelfReferral
	}
	if p.DefaultLinkPercentage.IsNegative() || p.DefaultLinkPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidLinkPercentage
	}
	if p.MinimumCommission < 0 {
		return ErrInvalidMinimum
	}
	return nil
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewPolicyHolder loads commission.yml and keeps it fresh while the file changes.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("commission.policy")

	v := viper.New()
	if cfg.PolicyFile != "" {
		v.SetConfigFile(cfg.PolicyFile)
	} else {
		v.SetConfigName("commission")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/nodeboss/config")
		v.AddConfigPath("/etc/nodeboss")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NODEBOSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("commission.max_override_depth", defaults.MaxOverrideDepth)
	v.SetDefault("commission.max_payout_ratio", defaults.MaxPayoutRatio.String())
	v.SetDefault("commission.override_base", string(defaults.OverrideBase))
	v.SetDefault("commission.self_referral", string(defaults.SelfReferral))
	v.SetDefault("commission.default_link_percentage", defaults.DefaultLinkPercentage.String())
	v.SetDefault("commission.minimum_commission", defaults.MinimumCommission)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	policy, err := policyFromViper(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := policyFromViper(v)
			if err != nil {
				log.Warn("invalid commission policy ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("commission policy reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	policy, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return policy
}

// Set replaces the active policy after validation.
func (h *PolicyHolder) Set(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	h.current.Store(policy)
	return nil
}

func policyFromViper(v *viper.Viper) (Policy, error) {
	ratio, err := decimal.NewFromString(strings.TrimSpace(v.GetString("commission.max_payout_ratio")))
	if err != nil {
		return Policy{}, fmt.Errorf("commission.max_payout_ratio: %w", err)
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(v.GetString("commission.default_link_percentage")))
	if err != nil {
		return Policy{}, fmt.Errorf("commission.default_link_percentage: %w", err)
	}

	policy := Policy{
		MaxOverrideDepth:      v.GetInt("commission.max_override_depth"),
		MaxPayoutRatio:        ratio,
		OverrideBase:          OverrideBase(strings.ToLower(strings.TrimSpace(v.GetString("commission.override_base")))),
		SelfReferral:          SelfReferralMode(strings.ToLower(strings.TrimSpace(v.GetString("commission.self_referral")))),
		DefaultLinkPercentage: pct,
		MinimumCommission:     v.GetInt64("commission.minimum_commission"),
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}
