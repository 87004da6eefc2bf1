package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/order"
)

// orderEvents streams order snapshots as server-sent events. The client gets
// the current committed state immediately, then every subsequent committed
// change until it disconnects. Intermediate states may be coalesced away;
// the stream always converges on the latest state.
func (h *Handler) orderEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "orderID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the snapshot read so a change committed in between is
	// not lost.
	sub := h.hub.Subscribe(id)
	defer sub.Cancel()

	o, err := h.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeErrorf(w, http.StatusNotFound, "order %s not found", id)
			return
		}
		zctx.From(ctx).Error("Get order for events", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, o)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub.Updates():
			if !ok {
				return
			}
			writeEvent(w, &next)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, o *order.Order) {
	var e jx.Encoder
	encodeOrder(&e, o)

	_, _ = w.Write([]byte("event: order\ndata: "))
	_, _ = w.Write(e.Bytes())
	_, _ = w.Write([]byte("\n\n"))
}
