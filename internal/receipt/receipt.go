// Package receipt renders pickup receipts for paid orders. The QR code
// carries the order id; the pickup terminal scans it to start validation.
package receipt

import (
	"strings"
	"text/template"
	"time"

	"github.com/go-faster/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/baminaj/storefront/internal/domain/order"
)

// Config holds the store identity printed on every receipt.
type Config struct {
	StoreName      string
	PickupLocation string
	Currency       string
}

const bodyTemplate = `{{ .StoreName }}
{{ .Divider }}
ORDER PICKUP RECEIPT

Order:       {{ .Order.ID }}
Placed:      {{ .Placed }}
Customer:    {{ .Order.CustomerName }}
Payment ref: {{ .Order.PaymentRef }}
Transaction: {{ .Order.TransactionID }}

ITEMS
{{ range .Order.Items -}}
  {{ .Quantity }} x {{ .Name }} @ {{ $.Currency }} {{ .UnitPrice.StringFixed 2 }} = {{ $.Currency }} {{ .LineTotal.StringFixed 2 }}
{{ end }}
TOTAL: {{ .Currency }} {{ .Order.Total.StringFixed 2 }}

Status: {{ .StatusLine }}
{{ .Divider }}
Pick up at {{ .PickupLocation }}.
Present this receipt at the counter and a valid ID
matching the name on the order.
`

// Renderer produces receipt bodies and QR images.
type Renderer struct {
	cfg Config
	tpl *template.Template
}

// NewRenderer parses the receipt template.
func NewRenderer(cfg Config) (*Renderer, error) {
	tpl, err := template.New("receipt").Parse(bodyTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parse receipt template")
	}
	return &Renderer{cfg: cfg, tpl: tpl}, nil
}

// Render returns the plain-text receipt for an order.
func (r *Renderer) Render(o *order.Order) (string, error) {
	var sb strings.Builder
	err := r.tpl.Execute(&sb, struct {
		StoreName      string
		PickupLocation string
		Currency       string
		Divider        string
		Placed         string
		StatusLine     string
		Order          *order.Order
	}{
		StoreName:      r.cfg.StoreName,
		PickupLocation: r.cfg.PickupLocation,
		Currency:       r.cfg.Currency,
		Divider:        strings.Repeat("=", 40),
		Placed:         o.CreatedAt.Format(time.RFC1123),
		StatusLine:     statusLine(o),
		Order:          o,
	})
	if err != nil {
		return "", errors.Wrap(err, "render receipt")
	}
	return sb.String(), nil
}

// QRCode returns a PNG QR image encoding the order id.
func (r *Renderer) QRCode(o *order.Order) ([]byte, error) {
	png, err := qrcode.Encode(o.ID, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}

func statusLine(o *order.Order) string {
	if o.Status == order.StatusCompleted && o.DispensedAt != nil {
		return "COMPLETED (picked up " + o.DispensedAt.Format(time.RFC1123) + ")"
	}
	return "AWAITING PICKUP"
}
