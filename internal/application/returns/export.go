package returns

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// MaxExportRows caps a single XLSX export
const MaxExportRows = 10000

const exportSheet = "Returns"

var exportHeaders = []string{
	"ID", "Order ID", "Item ID", "Customer ID", "Reason Type", "Reason",
	"Item Price", "Currency", "Status", "Auto Refunded", "Shipment Code",
	"Tracking Status", "Refund Amount", "Refund Reason", "Created At", "Resolved At",
}

// ExportReturnRequests writes a store's filtered return requests to w as XLSX.
// Paging parameters of the filter are ignored; at most MaxExportRows rows are written.
func (o *Orchestrator) ExportReturnRequests(ctx context.Context, actor returns.Actor, storeID uuid.UUID, filter ListReturnRequestsFilter, w io.Writer) (int, error) {
	if err := authorizeStore(actor, storeID); err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			o.log(ctx).Warn("failed to close export workbook", zap.Error(err))
		}
	}()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return 0, err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
		_ = f.SetCellStyle(exportSheet, "A1", last, style)
	}

	lf := filter.toDomain()
	lf.Page = 1
	lf.PageSize = 100
	written := 0
	for written < MaxExportRows {
		page, total, err := o.repo.ListByStore(ctx, storeID, lf)
		if err != nil {
			return written, err
		}
		for _, r := range page {
			cell, err := excelize.CoordinatesToCellName(1, written+2)
			if err != nil {
				return written, err
			}
			row := exportRow(r)
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return written, err
			}
			written++
			if written >= MaxExportRows {
				break
			}
		}
		if len(page) < lf.PageSize || int64(lf.Page*lf.PageSize) >= total {
			break
		}
		lf.Page++
	}

	_ = f.SetColWidth(exportSheet, "A", "D", 38)
	_ = f.SetColWidth(exportSheet, "E", "P", 18)
	if err := f.Write(w); err != nil {
		return written, fmt.Errorf("write export: %w", err)
	}
	o.log(ctx).Info("return requests exported",
		zap.String("store_id", storeID.String()),
		zap.Int("rows", written),
	)
	return written, nil
}

func exportRow(r *returns.ReturnRequest) []interface{} {
	refund := ""
	if r.RefundRequestedAt != nil {
		refund = r.RefundAmount.String()
	}
	return []interface{}{
		r.ID.String(),
		r.OrderItem.OrderID,
		r.OrderItem.ItemID,
		r.CustomerID.String(),
		string(r.ReasonType),
		r.Reason,
		r.ItemPrice.String(),
		string(r.Currency),
		string(r.Status),
		r.AutoRefunded,
		r.LastShipmentCode,
		string(r.TrackingStatus),
		refund,
		string(r.RefundReason),
		r.CreatedAt.UTC().Format(time.RFC3339),
		formatTime(r.ResolvedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
