package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/cart"
)

var errEmptyCustomerID = errors.New("customer_id is required")

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	c, err := h.carts.Load(r.Context(), customerID)
	if err != nil {
		zctx.From(r.Context()).Error("Load cart", zap.String("customer_id", customerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCart(e, c)
	})
}

func (h *Handler) putCart(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.carts.Save(r.Context(), c); err != nil {
		zctx.From(r.Context()).Error("Save cart", zap.String("customer_id", c.CustomerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCart(e, c)
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(c.CustomerID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, line := range c.Lines {
					encodeCartLine(e, line)
				}
			})
		})
	})
}

func encodeCartLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("client_price", func(e *jx.Encoder) { encodeDecimal(e, l.ClientPrice) })
	})
}

func decodeCart(r *http.Request) (*cart.Cart, error) {
	d := jx.Decode(r.Body, 4096)

	var c cart.Cart
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customer_id":
			v, err := d.Str()
			c.CustomerID = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				c.Lines = append(c.Lines, line)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}

	if c.CustomerID == "" {
		return nil, errEmptyCustomerID
	}
	return &c, nil
}

func decodeCartLine(d *jx.Decoder) (cart.Line, error) {
	var l cart.Line
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product_id":
			v, err := d.Str()
			l.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			l.Quantity = v
			return err
		case "client_price":
			return decodeDecimal(d, &l.ClientPrice)
		default:
			return d.Skip()
		}
	})
	return l, err
}

func decodeDecimal(d *jx.Decoder, out *decimal.Decimal) error {
	num, err := d.Num()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(num.String())
	if err != nil {
		return err
	}
	*out = v
	return nil
}
