// Package openbanking simulates an open-banking aggregator. It exposes a
// static catalog of banks, produces plausible transaction history for
// connected accounts and persists connection state through a key-value
// store so it survives restarts.
package openbanking

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/fintrack/fintrack-go/internal/domain"
)

//go:embed banks.toml
var catalogTOML []byte

// Merchant describes one row of the transaction generator's merchant
// table. Amounts are drawn uniformly from [Min, Max].
type Merchant struct {
	Name     string  `toml:"name"`
	Category string  `toml:"category"`
	Min      float64 `toml:"min"`
	Max      float64 `toml:"max"`
	Income   bool    `toml:"income"`
}

// SampleAccount is a catalog account template. Connecting a bank turns
// its templates into live ConnectedAccount records.
type SampleAccount struct {
	ID            string  `toml:"id"`
	BankID        string  `toml:"bank_id"`
	Name          string  `toml:"name"`
	Type          string  `toml:"type"`
	Balance       float64 `toml:"balance"`
	AccountNumber string  `toml:"account_number"`
	Currency      string  `toml:"currency"`
}

// Catalog holds the parsed banks.toml content.
type Catalog struct {
	Banks     []domain.BankDescriptor `toml:"banks"`
	Accounts  []SampleAccount         `toml:"accounts"`
	Merchants []Merchant              `toml:"merchants"`
}

// LoadCatalog parses the embedded bank catalog. It is called once at
// startup; a parse failure means the binary shipped with a broken
// catalog and is fatal.
func LoadCatalog() (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(catalogTOML, &c); err != nil {
		return nil, fmt.Errorf("parse bank catalog: %w", err)
	}
	if len(c.Banks) == 0 {
		return nil, fmt.Errorf("bank catalog is empty")
	}
	return &c, nil
}

// Bank returns the descriptor for id, or nil when the catalog does not
// list it.
func (c *Catalog) Bank(id string) *domain.BankDescriptor {
	for i := range c.Banks {
		if c.Banks[i].ID == id {
			return &c.Banks[i]
		}
	}
	return nil
}

// AccountsFor returns the sample accounts belonging to bankID.
func (c *Catalog) AccountsFor(bankID string) []SampleAccount {
	var out []SampleAccount
	for _, a := range c.Accounts {
		if a.BankID == bankID {
			out = append(out, a)
		}
	}
	return out
}
