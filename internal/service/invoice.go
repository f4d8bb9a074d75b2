package service

import (
	"context"
	"fmt"

	"polimarket/internal/models"
	"polimarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceNumber formats the deterministic invoice number of a sale:
// FAC-<6 digit sale id>-<sale date as yyyyMMdd, UTC>.
func InvoiceNumber(sale *models.Sale) string {
	return fmt.Sprintf("FAC-%06d-%s", sale.ID, sale.CreatedAt.UTC().Format("20060102"))
}

// GenerateInvoice builds the invoice view of a sale. The result only depends
// on persisted data, so repeated calls return the same invoice. Only invoices
// of COMPLETED or CANCELLED sales are cached: a pending sale can change
// between the read and the cache write.
func (w *SalesWorkflow) GenerateInvoice(ctx context.Context, saleID int64) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.GenerateInvoice")
	defer span.End()

	cached, err := w.cache.GetInvoice(ctx, saleID)
	if err != nil {
		w.logger.Warn("Invoice cache read failed", zap.Int64("sale_id", saleID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	sale, err := w.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	client, err := w.repo.GetPerson(ctx, sale.ClientID, models.PersonKindClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load client of sale %d: %w", saleID, err)
	}
	vendor, err := w.repo.GetPerson(ctx, sale.VendorID, models.PersonKindVendor)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor of sale %d: %w", saleID, err)
	}

	invoice := &models.Invoice{
		Number:     InvoiceNumber(sale),
		Date:       sale.CreatedAt,
		SaleID:     sale.ID,
		Status:     sale.Status,
		Total:      decimal.Zero,
		ClientName: client.FullName(),
		VendorName: vendor.FullName(),
		Lines:      make([]models.InvoiceLine, 0, len(sale.Items)),
	}
	for _, item := range sale.Items {
		invoice.Lines = append(invoice.Lines, models.InvoiceLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
		invoice.Total = invoice.Total.Add(item.Subtotal)
	}

	if sale.Status == models.SaleStatusPending {
		return invoice, nil
	}
	if err := w.cache.SetInvoice(ctx, invoice, w.cfg.InvoiceCacheTTL); err != nil {
		w.logger.Warn("Invoice cache write failed", zap.Int64("sale_id", saleID), zap.Error(err))
	}
	return invoice, nil
}
