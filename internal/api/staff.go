package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/order"
	"github.com/baminaj/storefront/internal/domain/pickup"
)

// staffListOrders returns every order, newest first, for the terminal's
// order board.
func (h *Handler) staffListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List all orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

type scanBody struct {
	terminal string
	code     string
}

// staffScan feeds one decoded code into the terminal's scan session and
// returns what the terminal should display.
func (h *Handler) staffScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeScan(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.metrics.Scans.Add(ctx, 1)

	s := h.terminal(body.terminal)
	s.mu.Lock()
	result, err := s.v.Scan(ctx, body.code)
	s.mu.Unlock()
	if err != nil {
		zctx.From(ctx).Error("Scan", zap.String("terminal", body.terminal), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeScanResult(e, result)
	})
}

// staffScanReset returns the terminal to idle for the next customer.
func (h *Handler) staffScanReset(w http.ResponseWriter, r *http.Request) {
	body, err := decodeScan(r)
	if err != nil && !errors.Is(err, errEmptyScanCode) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.terminal(body.terminal)
	s.mu.Lock()
	s.v.Reset()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(string(pickup.StateIdle)) })
		})
	})
}

// staffDispense confirms the hand-off for an order. The winner is decided by
// the repository's conditional update; a loser gets 409 naming who already
// dispensed and when.
func (h *Handler) staffDispense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "orderID")

	staffID := "unknown"
	if ident := IdentityFrom(ctx); ident != nil {
		staffID = ident.Name
	}

	o, err := pickup.Dispense(ctx, h.orders, id, staffID, time.Now().UTC())
	if err != nil {
		h.writeDispenseError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) writeDispenseError(w http.ResponseWriter, r *http.Request, id string, err error) {
	ctx := r.Context()

	var (
		already  *order.AlreadyDispensedError
		conflict *order.ConflictError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeErrorf(w, http.StatusNotFound, "order %s not found", id)
	case errors.As(err, &already):
		writeError(w, http.StatusConflict, already.Error())
	case errors.As(err, &conflict):
		h.metrics.DispenseConflicts.Add(ctx, 1)
		writeError(w, http.StatusConflict, conflict.Error())
	default:
		zctx.From(ctx).Error("Dispense", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func encodeScanResult(e *jx.Encoder, res *pickup.ScanResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("state", func(e *jx.Encoder) { e.Str(string(res.State)) })
		if res.Order != nil {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
		}
	})
}

var errEmptyScanCode = errors.New("code is required")

func decodeScan(r *http.Request) (*scanBody, error) {
	d := jx.Decode(r.Body, 4096)

	body := scanBody{terminal: "default"}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "terminal":
			body.terminal, err = d.Str()
		case "code":
			body.code, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}

	if body.code == "" {
		return &body, errEmptyScanCode
	}
	return &body, nil
}
