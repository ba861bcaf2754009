// Package private maintains the group of handlers for admin access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/kaspixel/kaspixel/business/core/credit"
	v1 "github.com/kaspixel/kaspixel/business/web/v1"
	"github.com/kaspixel/kaspixel/foundation/canvas"
	"github.com/kaspixel/kaspixel/foundation/events"
	"github.com/kaspixel/kaspixel/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of admin canvas endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Core   *credit.Core
	Canvas *canvas.Canvas
	Evts   *events.Events
}

// Wipe removes every pixel, persisted and in-memory, then pushes the
// empty board to every connected viewer. The order matters: the store is
// truncated before the broadcast so a crash between the steps leaves the
// viewers stale rather than the store.
func (h Handlers) Wipe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	if err := h.Core.WipePixels(); err != nil {
		return err
	}

	h.Canvas.Clear()
	h.Evts.BroadcastCanvas()

	h.Log.Infow("canvas wiped", "traceid", v.TraceID)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "canvas wiped",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Resync pushes the full current board to every connected viewer.
func (h Handlers) Resync(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Evts.BroadcastCanvas()

	resp := struct {
		Status  string `json:"status"`
		Viewers int    `json:"viewers"`
	}{
		Status:  "canvas resynced",
		Viewers: h.Evts.Len(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// place is the payload for a direct admin placement.
type place struct {
	X      int    `json:"x" validate:"gte=0"`
	Y      int    `json:"y" validate:"gte=0"`
	Color  string `json:"color" validate:"required,hexcolor"`
	Wallet string `json:"wallet"`
}

// Place sets a pixel without spending a credit and broadcasts it. This
// is the admin and demo path.
func (h Handlers) Place(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var p place
	if err := web.Decode(r, &p); err != nil {
		return err
	}

	if err := h.Core.RecordPixel(p.X, p.Y, p.Color, p.Wallet); err != nil {
		if errors.Is(err, credit.ErrInvalidCoordinates) {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		return err
	}

	h.Evts.BroadcastPixel(p.X, p.Y, p.Color)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "placed",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
