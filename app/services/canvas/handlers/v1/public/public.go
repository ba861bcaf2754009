// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kaspixel/kaspixel/business/core/credit"
	v1 "github.com/kaspixel/kaspixel/business/web/v1"
	"github.com/kaspixel/kaspixel/foundation/canvas"
	"github.com/kaspixel/kaspixel/foundation/events"
	"github.com/kaspixel/kaspixel/foundation/ledger"
	"github.com/kaspixel/kaspixel/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public canvas endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	Core     *credit.Core
	Canvas   *canvas.Canvas
	Evts     *events.Events
	Verifier *ledger.Verifier
	WS       websocket.Upgrader

	PackCostSompi uint64
	PackSize      uint
}

// Events upgrades the connection to a websocket and hands it to the
// event system, which owns the session until the client disconnects.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	h.Log.Infow("events: websocket open", "traceid", v.TraceID, "remoteaddr", r.RemoteAddr)
	h.Evts.Run(c)
	h.Log.Infow("events: websocket closed", "traceid", v.TraceID, "remoteaddr", r.RemoteAddr)

	return nil
}

// CanvasState returns the full in-memory board.
func (h Handlers) CanvasState(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	state := canvasState{
		Width:  h.Canvas.Width(),
		Height: h.Canvas.Height(),
		Pixels: h.Canvas.Copy(),
	}

	return web.Respond(ctx, w, state, http.StatusOK)
}

// CanvasConfig returns the board geometry and credit pricing.
func (h Handlers) CanvasConfig(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cfg := config{
		Width:         h.Canvas.Width(),
		Height:        h.Canvas.Height(),
		PackCostSompi: h.PackCostSompi,
		PackSize:      h.PackSize,
	}

	return web.Respond(ctx, w, cfg, http.StatusOK)
}

// Pixels returns every persisted placement with its provenance.
func (h Handlers) Pixels(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stored, err := h.Core.Pixels()
	if err != nil {
		return err
	}

	pixels := make([]pixel, len(stored))
	for i, p := range stored {
		pixels[i] = pixel{
			X:         p.X,
			Y:         p.Y,
			Color:     p.Color,
			Wallet:    p.Wallet,
			TxID:      p.TxID,
			CreatedAt: p.CreatedAt,
		}
	}

	return web.Respond(ctx, w, pixels, http.StatusOK)
}

// PlacePixel spends one credit to set a pixel and broadcasts the update
// to every connected viewer.
func (h Handlers) PlacePixel(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var np newPixel
	if err := web.Decode(r, &np); err != nil {
		return err
	}

	remaining, err := h.Core.PlacePixel(np.X, np.Y, np.Color, np.Wallet, np.TxID)
	if err != nil {
		switch {
		case errors.Is(err, credit.ErrInvalidCoordinates):
			return v1.NewRequestError(err, http.StatusBadRequest)
		case errors.Is(err, credit.ErrInsufficientBalance):
			return v1.NewRequestError(err, http.StatusPaymentRequired)
		}
		return err
	}

	h.Log.Infow("place pixel", "traceid", v.TraceID, "x", np.X, "y", np.Y, "color", np.Color, "wallet", np.Wallet)
	h.Evts.BroadcastPixel(np.X, np.Y, np.Color)

	resp := placed{
		Status:  "placed",
		Balance: remaining,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitPurchase records a credit purchase and kicks off background
// verification of its payment.
func (h Handlers) SubmitPurchase(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var np newPurchase
	if err := web.Decode(r, &np); err != nil {
		return err
	}

	p, err := h.Core.SubmitPurchase(np.Wallet, np.TxID, np.AmountSompi)
	if err != nil {
		if errors.Is(err, credit.ErrAmountTooSmall) {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		return err
	}

	h.Log.Infow("submit purchase", "traceid", v.TraceID, "tx", p.TxID, "wallet", p.Wallet, "status", p.Status)

	resp := purchase{
		TxID:    p.TxID,
		Wallet:  p.Wallet,
		Status:  p.Status,
		Credits: p.Credits,
		Balance: p.Balance,
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// Balance returns the credit count for the specified wallet.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	wallet := web.Param(r, "wallet")

	credits, err := h.Core.Balance(wallet)
	if err != nil {
		return err
	}

	resp := balance{
		Wallet:  wallet,
		Credits: credits,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Metrics returns verification timing metrics, aggregate or for one
// transaction id.
func (h Handlers) Metrics(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")
	if id == "" {
		return web.Respond(ctx, w, h.Verifier.Metrics(), http.StatusOK)
	}

	tm, exists := h.Verifier.TransactionMetrics(id)
	if !exists {
		return v1.NewRequestError(errors.New("unknown transaction id"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, tm, http.StatusOK)
}

// VerifyTransaction performs a single verification poll for the
// specified transaction id and reports the verdict.
func (h Handlers) VerifyTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	result := h.Verifier.Verify(ctx, web.Param(r, "id"))

	resp := verification{
		TxID:        ledger.NormalizeID(web.Param(r, "id")),
		Verified:    result.Verified,
		BlockHash:   result.BlockHash,
		BlockHeight: result.BlockHeight,
		Error:       result.Error,
	}
	if result.Verified {
		resp.ConfirmationTime = result.ConfirmationTime.String()
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
