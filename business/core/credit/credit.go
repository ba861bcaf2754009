// Package credit implements the business rules for purchasing pixel
// credits, spending them on placements, and verifying the payments that
// back them.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kaspixel/kaspixel/business/sys/store"
	"github.com/kaspixel/kaspixel/foundation/ledger"
	"go.uber.org/zap"
)

// Set of error variables for business rule failures.
var (
	ErrInvalidCoordinates  = errors.New("invalid pixel coordinates")
	ErrAmountTooSmall      = errors.New("amount too small for a credit pack")
	ErrInsufficientBalance = store.ErrInsufficientBalance
)

// Purchase statuses returned to callers.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

// Verifier represents the behavior required to check a transaction id
// against the ledger.
type Verifier interface {
	Verify(ctx context.Context, txID string) ledger.Result
}

// Driver represents the behavior required to run verification drives in
// the background. The worker assigns itself to the core on startup.
type Driver interface {
	SignalDrive(txID string)
	Shutdown()
}

// Config represents the configuration required to construct the core.
type Config struct {
	Log      *zap.SugaredLogger
	Store    *store.Store
	Verifier Verifier

	CanvasWidth  int
	CanvasHeight int

	// PackCostSompi is the price of one credit pack in the smallest
	// currency unit; PackSize is how many credits a pack grants.
	PackCostSompi uint64
	PackSize      uint

	// Bounded retry policy for one verification drive.
	MaxAttempts int
	RetryDelay  time.Duration
}

// Core manages purchases, placements, and verification drives.
type Core struct {
	log      *zap.SugaredLogger
	store    *store.Store
	verifier Verifier

	width         int
	height        int
	packCostSompi uint64
	packSize      uint
	maxAttempts   int
	retryDelay    time.Duration

	// The Worker is not set here. The call to RunWorker will assign
	// itself and start the background drive support.
	Worker Driver
}

// NewCore constructs a core for credit management.
func NewCore(cfg Config) *Core {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	return &Core{
		log:           cfg.Log,
		store:         cfg.Store,
		verifier:      cfg.Verifier,
		width:         cfg.CanvasWidth,
		height:        cfg.CanvasHeight,
		packCostSompi: cfg.PackCostSompi,
		packSize:      cfg.PackSize,
		maxAttempts:   cfg.MaxAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

// Purchase is the state of a submitted payment as reported to callers.
type Purchase struct {
	TxID    string
	Wallet  string
	Status  string
	Credits uint
	Balance uint
}

// SubmitPurchase records a payment for credits and kicks off background
// verification. Re-submitting a known transaction id is an idempotent
// no-op that reports the existing state.
func (c *Core) SubmitPurchase(wallet string, rawTxID string, amountSompi uint64) (Purchase, error) {
	txID := ledger.NormalizeID(rawTxID)

	existing, err := c.store.QueryTransaction(txID)
	if err == nil {
		balance, err := c.store.QueryBalance(wallet)
		if err != nil {
			return Purchase{}, err
		}

		p := Purchase{
			TxID:    txID,
			Wallet:  wallet,
			Status:  StatusPending,
			Credits: existing.Credits,
			Balance: balance,
		}

		if existing.Verified {
			p.Status = StatusProcessed
			return p, nil
		}

		// Still pending. Give it another push.
		c.SignalDrive(txID)
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Purchase{}, err
	}

	packs := amountSompi / c.packCostSompi
	credits := uint(packs) * c.packSize
	if credits == 0 {
		return Purchase{}, fmt.Errorf("amount %d sompi below pack cost %d: %w", amountSompi, c.packCostSompi, ErrAmountTooSmall)
	}

	t := store.Transaction{
		TxID:        txID,
		Wallet:      wallet,
		AmountSompi: amountSompi,
		Credits:     credits,
	}
	if err := c.store.InsertTransaction(t); err != nil {
		if errors.Is(err, store.ErrDuplicateTx) {

			// Lost a race with another submission of the same id.
			return c.SubmitPurchase(wallet, txID, amountSompi)
		}
		return Purchase{}, err
	}

	c.log.Infow("credit: purchase submitted", "tx", txID, "wallet", wallet, "credits", credits)
	c.SignalDrive(txID)

	balance, err := c.store.QueryBalance(wallet)
	if err != nil {
		return Purchase{}, err
	}

	return Purchase{
		TxID:    txID,
		Wallet:  wallet,
		Status:  StatusPending,
		Credits: credits,
		Balance: balance,
	}, nil
}

// DriveVerification polls the verifier for the specified transaction
// under the bounded retry policy and credits the wallet exactly once on
// success. Exhausting the attempt budget is not an error: the record
// stays pending and remains eligible for a later re-drive.
func (c *Core) DriveVerification(ctx context.Context, rawTxID string) error {
	txID := ledger.NormalizeID(rawTxID)

	t, err := c.store.QueryTransaction(txID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.log.Infow("credit: drive: unknown transaction", "tx", txID)
			return nil
		}
		return err
	}

	// Idempotency guard: a second drive for a verified transaction must
	// never credit again.
	if t.Verified {
		return nil
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result := c.verifier.Verify(ctx, txID)

		if result.Verified {
			if err := c.store.Credit(txID); err != nil {
				if errors.Is(err, store.ErrAlreadyVerified) {
					return nil
				}
				return err
			}

			c.log.Infow("credit: verified and credited",
				"tx", txID, "wallet", t.Wallet, "credits", t.Credits,
				"attempt", attempt, "block", result.BlockHash)
			return nil
		}

		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	c.log.Infow("credit: drive exhausted, transaction stays pending", "tx", txID, "attempts", c.maxAttempts)
	return nil
}

// SignalDrive hands the transaction id to the background worker. With no
// worker running the drive executes inline, which only the tests do.
func (c *Core) SignalDrive(txID string) {
	if c.Worker != nil {
		c.Worker.SignalDrive(txID)
		return
	}

	if err := c.DriveVerification(context.Background(), txID); err != nil {
		c.log.Errorw("credit: inline drive", "tx", txID, "ERROR", err)
	}
}

// PlacePixel spends one credit from the wallet and persists the pixel.
// The debit and the save commit together, so a failed placement never
// costs a credit. The broadcast to live viewers is the caller's step so
// this core stays free of any transport concern.
func (c *Core) PlacePixel(x int, y int, color string, wallet string, rawTxID string) (uint, error) {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return 0, fmt.Errorf("pixel (%d,%d) outside %dx%d: %w", x, y, c.width, c.height, ErrInvalidCoordinates)
	}

	p := store.Pixel{
		X:      x,
		Y:      y,
		Color:  color,
		Wallet: wallet,
		TxID:   ledger.NormalizeID(rawTxID),
	}

	return c.store.DebitForPixel(wallet, p)
}

// RecordPixel persists a placement without spending a credit. The admin
// tooling uses this path.
func (c *Core) RecordPixel(x int, y int, color string, wallet string) error {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return fmt.Errorf("pixel (%d,%d) outside %dx%d: %w", x, y, c.width, c.height, ErrInvalidCoordinates)
	}

	p := store.Pixel{
		X:      x,
		Y:      y,
		Color:  color,
		Wallet: wallet,
	}

	return c.store.SavePixel(p)
}

// Pixels returns every persisted pixel placement.
func (c *Core) Pixels() ([]store.Pixel, error) {
	return c.store.AllPixels()
}

// Balance returns the credit count for the specified wallet.
func (c *Core) Balance(wallet string) (uint, error) {
	return c.store.QueryBalance(wallet)
}

// PendingTransactions returns every transaction still awaiting
// verification.
func (c *Core) PendingTransactions() ([]store.Transaction, error) {
	return c.store.UnverifiedTransactions()
}

// WipePixels removes every persisted pixel. The in-memory canvas and the
// viewer resync are the caller's responsibility.
func (c *Core) WipePixels() error {
	return c.store.TruncatePixels()
}
