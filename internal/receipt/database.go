package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/billrecon/internal/bill"
)

const (
	billsBucket      = "bills"
	vendorDateBucket = "bills_by_vendor_date"
	hashBucket       = "bills_by_hash"
)

// ErrNotFound is returned when no bill matches the lookup.
var ErrNotFound = errors.New("bill not found")

// DB defines the interface for database operations
type DB interface {
	// SaveBill inserts or replaces a bill and its index entries
	SaveBill(b *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ListBills returns all bills, newest first
	ListBills() ([]*Bill, error)

	// DeleteBill removes a bill and its index entries
	DeleteBill(id string) error

	// FindByHash returns the bill saved from the document with this SHA-256
	FindByHash(hash string) (*Bill, error)

	// FindByVendorDate returns summaries of the bills stored for a vendor on a date
	FindByVendorDate(ctx context.Context, vendorKey string, date time.Time) ([]bill.Summary, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Besides the bills bucket it
// keeps two indexes: vendor key and purchase date, and document hash.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{billsBucket, vendorDateBucket, hashBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// vendorDatePrefix is the index prefix shared by every bill of one vendor on one day.
func vendorDatePrefix(vendorKey string, date time.Time) []byte {
	return []byte(vendorKey + "|" + bill.DateKey(date) + "|")
}

func vendorDateKey(b *Bill) []byte {
	if b.VendorKey == "" || b.PurchaseDate == nil {
		return nil
	}
	return append(vendorDatePrefix(b.VendorKey, *b.PurchaseDate), b.ID...)
}

// unindex drops the index entries of the stored version of b, if any.
func unindex(tx *bbolt.Tx, id string) error {
	data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
	if data == nil {
		return nil
	}
	var old Bill
	if err := json.Unmarshal(data, &old); err != nil {
		return fmt.Errorf("unmarshaling bill: %w", err)
	}
	if key := vendorDateKey(&old); key != nil {
		if err := tx.Bucket([]byte(vendorDateBucket)).Delete(key); err != nil {
			return err
		}
	}
	if old.DocumentHash != "" {
		hashes := tx.Bucket([]byte(hashBucket))
		if bytes.Equal(hashes.Get([]byte(old.DocumentHash)), []byte(id)) {
			if err := hashes.Delete([]byte(old.DocumentHash)); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveBill saves a bill and refreshes its index entries in one transaction
func (b *BoltDB) SaveBill(rec *Bill) error {
	if rec.ID == "" {
		return errors.New("bill id is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := unindex(tx, rec.ID); err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		if err := tx.Bucket([]byte(billsBucket)).Put([]byte(rec.ID), data); err != nil {
			return err
		}

		if key := vendorDateKey(rec); key != nil {
			if err := tx.Bucket([]byte(vendorDateBucket)).Put(key, []byte(rec.ID)); err != nil {
				return err
			}
		}
		if rec.DocumentHash != "" {
			if err := tx.Bucket([]byte(hashBucket)).Put([]byte(rec.DocumentHash), []byte(rec.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func getBill(tx *bbolt.Tx, id string) (*Bill, error) {
	data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Bill
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling bill %s: %w", id, err)
	}
	return &rec, nil
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var rec *Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getBill(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListBills returns all bills, newest first
func (b *BoltDB) ListBills() ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(billsBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var rec Bill
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling bill: %w", err)
			}
			bills = append(bills, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].CreatedAt.After(bills[j].CreatedAt)
	})
	return bills, nil
}

// DeleteBill removes a bill from the database
func (b *BoltDB) DeleteBill(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(billsBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := unindex(tx, id); err != nil {
			return err
		}
		return bucket.Delete([]byte(id))
	})
}

// FindByHash returns the bill saved from the document with this hash
func (b *BoltDB) FindByHash(hash string) (*Bill, error) {
	var rec *Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(hashBucket)).Get([]byte(hash))
		if id == nil {
			return fmt.Errorf("%w: hash %s", ErrNotFound, hash)
		}
		var err error
		rec, err = getBill(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByVendorDate scans the vendor/date index. It reads inside a single View
// transaction, so the result is a consistent snapshot.
func (b *BoltDB) FindByVendorDate(ctx context.Context, vendorKey string, date time.Time) ([]bill.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []bill.Summary
	prefix := vendorDatePrefix(vendorKey, date)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(vendorDateBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := getBill(tx, string(v))
			if err != nil {
				return err
			}
			out = append(out, rec.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying bills for %s on %s: %w", vendorKey, bill.DateKey(date), err)
	}
	return out, nil
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}
