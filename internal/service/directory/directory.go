package directory

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
)

// Directory holds the uploaded user records and transactions. Each upload
// replaces the previous table wholesale; readers never see a partial table.
type Directory struct {
	records      atomic.Pointer[record.Table]
	transactions atomic.Pointer[record.Transactions]
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{}
}

// Records returns the current record table, or nil before any upload.
func (d *Directory) Records() *record.Table {
	return d.records.Load()
}

// Transactions returns the current transaction table, or nil before any upload.
func (d *Directory) Transactions() *record.Transactions {
	return d.transactions.Load()
}

// ReplaceRecords swaps in a new record table.
func (d *Directory) ReplaceRecords(t *record.Table) {
	d.records.Store(t)
	log.Printf("[directory] user records replaced, rows=%d", t.Len())
}

// ReplaceTransactions swaps in a new transaction table.
func (d *Directory) ReplaceTransactions(t *record.Transactions) {
	d.transactions.Store(t)
	log.Printf("[directory] transactions replaced, rows=%d", t.Len())
}

// LoadRecords decodes a CSV upload and installs it.
func (d *Directory) LoadRecords(r io.Reader) (*record.Table, error) {
	table, err := record.DecodeRecordsCSV(r)
	if err != nil {
		return nil, err
	}
	d.ReplaceRecords(table)
	return table, nil
}

// LoadTransactions decodes a CSV upload and installs it.
func (d *Directory) LoadTransactions(r io.Reader) (*record.Transactions, error) {
	tx, err := record.DecodeTransactionsCSV(r)
	if err != nil {
		return nil, err
	}
	d.ReplaceTransactions(tx)
	return tx, nil
}

// LoadRecordsFile installs records from a file on disk.
func (d *Directory) LoadRecordsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open user records %s: %w", path, err)
	}
	defer f.Close()

	if _, err := d.LoadRecords(f); err != nil {
		return fmt.Errorf("load user records %s: %w", path, err)
	}
	return nil
}

// LoadTransactionsFile installs transactions from a file on disk.
func (d *Directory) LoadTransactionsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transactions %s: %w", path, err)
	}
	defer f.Close()

	if _, err := d.LoadTransactions(f); err != nil {
		return fmt.Errorf("load transactions %s: %w", path, err)
	}
	return nil
}
