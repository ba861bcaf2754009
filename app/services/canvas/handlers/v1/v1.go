// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/kaspixel/kaspixel/app/services/canvas/handlers/v1/private"
	"github.com/kaspixel/kaspixel/app/services/canvas/handlers/v1/public"
	"github.com/kaspixel/kaspixel/business/core/credit"
	"github.com/kaspixel/kaspixel/foundation/canvas"
	"github.com/kaspixel/kaspixel/foundation/events"
	"github.com/kaspixel/kaspixel/foundation/ledger"
	"github.com/kaspixel/kaspixel/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log      *zap.SugaredLogger
	Core     *credit.Core
	Canvas   *canvas.Canvas
	Evts     *events.Events
	Verifier *ledger.Verifier

	PackCostSompi uint64
	PackSize      uint
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:           cfg.Log,
		Core:          cfg.Core,
		Canvas:        cfg.Canvas,
		Evts:          cfg.Evts,
		Verifier:      cfg.Verifier,
		PackCostSompi: cfg.PackCostSompi,
		PackSize:      cfg.PackSize,
	}

	app.Handle(http.MethodGet, version, "/canvas", pbl.CanvasState)
	app.Handle(http.MethodGet, version, "/config", pbl.CanvasConfig)
	app.Handle(http.MethodGet, version, "/pixels", pbl.Pixels)
	app.Handle(http.MethodPost, version, "/pixels", pbl.PlacePixel)
	app.Handle(http.MethodPost, version, "/purchases", pbl.SubmitPurchase)
	app.Handle(http.MethodGet, version, "/wallets/:wallet/balance", pbl.Balance)
	app.Handle(http.MethodGet, version, "/tx/metrics", pbl.Metrics)
	app.Handle(http.MethodGet, version, "/tx/metrics/:id", pbl.Metrics)
	app.Handle(http.MethodGet, version, "/tx/verify/:id", pbl.VerifyTransaction)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:    cfg.Log,
		Core:   cfg.Core,
		Canvas: cfg.Canvas,
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodPost, version, "/canvas/wipe", prv.Wipe)
	app.Handle(http.MethodPost, version, "/canvas/resync", prv.Resync)
	app.Handle(http.MethodPost, version, "/canvas/place", prv.Place)
}
