package config

import (
	"fmt"
	"math/big"
	"strings"

	"swapguard/crypto"
)

const maxBps = 10_000

// Validate rejects configurations that would fail deeper in the stack.
func (c *Config) Validate() error {
	if c.Audit.DefaultThresholdBps > maxBps {
		return fmt.Errorf("config: Audit.DefaultThresholdBps %d exceeds %d", c.Audit.DefaultThresholdBps, maxBps)
	}
	if c.Twap.ExecutorFeeBps > 1_000 {
		return fmt.Errorf("config: Twap.ExecutorFeeBps %d exceeds 1000", c.Twap.ExecutorFeeBps)
	}
	if c.Genesis.VenueRateBps == 0 {
		return fmt.Errorf("config: Genesis.VenueRateBps must be positive")
	}

	if owner := strings.TrimSpace(c.Genesis.Owner); owner != "" {
		if _, err := crypto.DecodeAddress(owner); err != nil {
			return fmt.Errorf("config: Genesis.Owner: %w", err)
		}
	}
	for i, caller := range c.Genesis.TrustedCallers {
		if _, err := crypto.DecodeAddress(caller); err != nil {
			return fmt.Errorf("config: Genesis.TrustedCallers[%d]: %w", i, err)
		}
	}
	seen := make(map[string]struct{}, len(c.Genesis.Tokens))
	for i, token := range c.Genesis.Tokens {
		if _, err := crypto.DecodeAddress(token.Address); err != nil {
			return fmt.Errorf("config: Genesis.Tokens[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(token.Symbol) == "" {
			return fmt.Errorf("config: Genesis.Tokens[%d] missing symbol", i)
		}
		if _, dup := seen[token.Address]; dup {
			return fmt.Errorf("config: Genesis.Tokens[%d] duplicates %s", i, token.Address)
		}
		seen[token.Address] = struct{}{}
	}
	// Balance entries name their account; venue liquidity may omit it and
	// default to the venue's liquidity address.
	for i, fund := range c.Genesis.Balances {
		if err := fund.validate(true); err != nil {
			return fmt.Errorf("config: Genesis.Balances[%d]: %w", i, err)
		}
	}
	for i, fund := range c.Genesis.VenueLiquidity {
		if err := fund.validate(false); err != nil {
			return fmt.Errorf("config: Genesis.VenueLiquidity[%d]: %w", i, err)
		}
	}
	return nil
}

func (f GenesisFund) validate(requireAccount bool) error {
	if _, err := f.ParsedAmount(); err != nil {
		return err
	}
	if _, err := crypto.DecodeAddress(f.Token); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	account := strings.TrimSpace(f.Account)
	if account == "" {
		if requireAccount {
			return fmt.Errorf("account required")
		}
		return nil
	}
	if _, err := crypto.DecodeAddress(account); err != nil {
		return fmt.Errorf("account: %w", err)
	}
	return nil
}

// ParsedAmount decodes the decimal amount string into a big integer.
func (f GenesisFund) ParsedAmount() (*big.Int, error) {
	raw := strings.TrimSpace(f.Amount)
	if raw == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", f.Amount)
	}
	return amount, nil
}
