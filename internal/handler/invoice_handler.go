package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/service"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type invoiceOpener interface {
	OpenInvoice(ctx context.Context, quoteID, token string) (*service.InvoiceDownload, error)
}

// InvoiceHandler streams proforma invoices to holders of a signed link.
type InvoiceHandler struct {
	invoices invoiceOpener
}

func NewInvoiceHandler(invoices invoiceOpener) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// Download godoc
// @Summary Download a proforma invoice
// @Tags Invoices
// @Produce application/pdf
// @Param quoteId path string true "Quote ID"
// @Param token query string true "Signed token from the notification email"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /invoices/{quoteId} [get]
func (h *InvoiceHandler) Download(c *gin.Context) {
	inv, err := h.invoices.OpenInvoice(c.Request.Context(), c.Param("quoteId"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer inv.Content.Close()
	response.Attachment(c, inv.Filename, "application/pdf", inv.Size, inv.Content)
}
