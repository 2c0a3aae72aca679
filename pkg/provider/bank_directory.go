package provider

import (
	"sync"
	"time"

	"github.com/payflow-hq/payflow/pkg/models"
)

// BankDirectory caches the bank list to avoid refetching it on every
// recipient edit. Entries expire after the configured TTL.
type BankDirectory struct {
	mu        sync.RWMutex
	client    *Client
	banks     []models.Bank
	fetchedAt time.Time
	cacheTTL  time.Duration
}

// NewBankDirectory creates a bank directory backed by the provider client.
func NewBankDirectory(client *Client, cacheTTL time.Duration) *BankDirectory {
	return &BankDirectory{
		client:   client,
		cacheTTL: cacheTTL,
	}
}

// Banks returns the cached bank list, refreshing it when stale.
func (d *BankDirectory) Banks() ([]models.Bank, error) {
	d.mu.RLock()
	if d.banks != nil && time.Since(d.fetchedAt) <= d.cacheTTL {
		banks := d.banks
		d.mu.RUnlock()
		return banks, nil
	}
	d.mu.RUnlock()

	banks, err := d.client.GetBankList()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.banks = banks
	d.fetchedAt = time.Now()
	d.mu.Unlock()

	return banks, nil
}

// Lookup returns the bank with the given code from the cached directory.
func (d *BankDirectory) Lookup(bankCode string) (models.Bank, bool) {
	banks, err := d.Banks()
	if err != nil {
		return models.Bank{}, false
	}
	for _, bank := range banks {
		if bank.BankCode == bankCode {
			return bank, true
		}
	}
	return models.Bank{}, false
}

// Clear drops the cached list so the next call refetches.
func (d *BankDirectory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.banks = nil
	d.fetchedAt = time.Time{}
}
