// Package store implements persistence for pixels, transactions, and
// wallet balances on an embedded badger database.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// Set of error variables for store operations.
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateTx         = errors.New("transaction already exists")
	ErrAlreadyVerified     = errors.New("transaction already verified")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config represents the settings to open the store.
type Config struct {

	// Dir is where the database files live. An empty value opens an
	// in-memory database, which is what the tests use.
	Dir string
}

// Store manages access to the persisted canvas records.
type Store struct {
	db *badgerhold.Store
}

// New opens the store at the configured directory.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil

	if cfg.Dir == "" {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Pixels

// pixelKey produces the coordinate key a pixel is stored under.
func pixelKey(x int, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// AllPixels returns every persisted pixel. Used at startup to seed the
// in-memory canvas.
func (s *Store) AllPixels() ([]Pixel, error) {
	var pixels []Pixel
	if err := s.db.Find(&pixels, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("querying pixels: %w", err)
	}

	return pixels, nil
}

// SavePixel persists the specified pixel, replacing any existing pixel at
// the same coordinate.
func (s *Store) SavePixel(p Pixel) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	if err := s.db.Upsert(pixelKey(p.X, p.Y), p); err != nil {
		return fmt.Errorf("saving pixel: %w", err)
	}

	return nil
}

// TruncatePixels removes every persisted pixel. Used by the
// administrative wipe.
func (s *Store) TruncatePixels() error {
	if err := s.db.DeleteMatching(&Pixel{}, &badgerhold.Query{}); err != nil {
		return fmt.Errorf("truncating pixels: %w", err)
	}

	return nil
}

// =============================================================================
// Transactions

// InsertTransaction records a new pending transaction.
func (s *Store) InsertTransaction(t Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := s.db.Insert(t.TxID, t); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return ErrDuplicateTx
		}
		return fmt.Errorf("inserting transaction: %w", err)
	}

	return nil
}

// QueryTransaction returns the transaction with the specified id.
func (s *Store) QueryTransaction(txID string) (Transaction, error) {
	var t Transaction
	if err := s.db.Get(txID, &t); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("querying transaction: %w", err)
	}

	return t, nil
}

// UnverifiedTransactions returns every transaction still pending
// verification, oldest first.
func (s *Store) UnverifiedTransactions() ([]Transaction, error) {
	var txs []Transaction
	if err := s.db.Find(&txs, badgerhold.Where("Verified").Eq(false).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("querying unverified transactions: %w", err)
	}

	return txs, nil
}

// =============================================================================
// Balances

// QueryBalance returns the credit count for the specified wallet. A
// wallet with no record has a zero balance.
func (s *Store) QueryBalance(wallet string) (uint, error) {
	var b Balance
	if err := s.db.Get(wallet, &b); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying balance: %w", err)
	}

	return b.Credits, nil
}

// Credit flips the specified transaction to verified and adds its credit
// amount to the wallet balance. Both mutations commit in one database
// transaction or not at all, so a crash can never leave a credited
// balance with an unverified record or the reverse.
func (s *Store) Credit(txID string) error {
	err := s.db.Badger().Update(func(btx *badger.Txn) error {
		var t Transaction
		if err := s.db.TxGet(btx, txID, &t); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		if t.Verified {
			return ErrAlreadyVerified
		}

		var b Balance
		if err := s.db.TxGet(btx, t.Wallet, &b); err != nil {
			if !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
			b = Balance{Wallet: t.Wallet}
		}

		b.Credits += t.Credits
		b.UpdatedAt = time.Now().UTC()
		if err := s.db.TxUpsert(btx, t.Wallet, b); err != nil {
			return err
		}

		t.Verified = true
		return s.db.TxUpdate(btx, txID, t)
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyVerified) {
			return err
		}
		return fmt.Errorf("crediting wallet: %w", err)
	}

	return nil
}

// Debit consumes one credit from the specified wallet and returns the
// remaining balance. The read-check-decrement runs in one database
// transaction so two concurrent placements can't consume the same credit.
func (s *Store) Debit(wallet string) (uint, error) {
	var remaining uint

	err := s.db.Badger().Update(func(btx *badger.Txn) error {
		var err error
		remaining, err = s.txDebit(btx, wallet)
		return err
	})

	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return 0, err
		}
		return 0, fmt.Errorf("debiting wallet: %w", err)
	}

	return remaining, nil
}

// DebitForPixel consumes one credit from the specified wallet and
// persists the pixel in the same database transaction. Either the credit
// is spent and the pixel saved, or neither happens, so a balance can
// never decrease without a placement to show for it.
func (s *Store) DebitForPixel(wallet string, p Pixel) (uint, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var remaining uint

	err := s.db.Badger().Update(func(btx *badger.Txn) error {
		var err error
		if remaining, err = s.txDebit(btx, wallet); err != nil {
			return err
		}

		return s.db.TxUpsert(btx, pixelKey(p.X, p.Y), p)
	})

	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return 0, err
		}
		return 0, fmt.Errorf("debiting wallet for pixel: %w", err)
	}

	return remaining, nil
}

// txDebit consumes one credit from the specified wallet inside the
// supplied transaction and returns the remaining balance.
func (s *Store) txDebit(btx *badger.Txn, wallet string) (uint, error) {
	var b Balance
	if err := s.db.TxGet(btx, wallet, &b); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}

	if b.Credits == 0 {
		return 0, ErrInsufficientBalance
	}

	b.Credits--
	b.UpdatedAt = time.Now().UTC()

	if err := s.db.TxUpsert(btx, wallet, b); err != nil {
		return 0, err
	}

	return b.Credits, nil
}
