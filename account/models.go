// Package account defines the ledger account model.
package account

import (
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// Account is a tenant-scoped ledger account. Accounts are immutable after
// creation: the currency, type, and metadata never change, and an account is
// never deleted. Balances are derived from the account's event history, never
// stored here.
type Account struct {
	types.Entity
	ID       id.AccountID      `json:"id"`
	TenantID string            `json:"tenant_id"`
	Type     string            `json:"account_type"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Key returns the identity pair of the account. Uniqueness is enforced on
// (tenant, account id), so two tenants may hold accounts with the same ID.
func (a *Account) Key() (tenantID string, accountID id.AccountID) {
	return a.TenantID, a.ID
}
