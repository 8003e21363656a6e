package jobs

import (
	"context"
	"time"

	"billdesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const scanLimit = 1000

type InventoryAlertService struct {
	productRepo repositories.ProductRepository
	billRepo    repositories.BillRepository
	now         func() time.Time
}

type InventoryAlert struct {
	ProductID    uuid.UUID
	ProductName  string
	CurrentStock int
	Threshold    int
}

type OverdueSummary struct {
	Count       int
	OldestBill  string
	MaxDaysLate int
}

func NewInventoryAlertService(productRepo repositories.ProductRepository, billRepo repositories.BillRepository) *InventoryAlertService {
	return &InventoryAlertService{
		productRepo: productRepo,
		billRepo:    billRepo,
		now:         time.Now,
	}
}

// CheckLowStock lists active products at or below their own threshold.
func (a *InventoryAlertService) CheckLowStock(ctx context.Context) ([]InventoryAlert, error) {
	products, err := a.productRepo.ListLowStock(ctx, scanLimit)
	if err != nil {
		logrus.WithError(err).Error("failed to list low stock products")
		return nil, err
	}

	alerts := make([]InventoryAlert, 0, len(products))
	for _, p := range products {
		if !p.IsLowStock() {
			continue
		}
		alerts = append(alerts, InventoryAlert{
			ProductID:    p.ID,
			ProductName:  p.Name,
			CurrentStock: p.Quantity,
			Threshold:    p.LowStockThreshold,
		})
	}
	return alerts, nil
}

func (a *InventoryAlertService) LogLowStockAlerts(alerts []InventoryAlert) {
	if len(alerts) == 0 {
		logrus.Debug("no low stock alerts")
		return
	}
	for _, alert := range alerts {
		logrus.WithFields(logrus.Fields{
			"product_id": alert.ProductID,
			"product":    alert.ProductName,
			"stock":      alert.CurrentStock,
			"threshold":  alert.Threshold,
		}).Warn("product stock is low")
	}
}

// CheckOverdueBills summarises pending bills past their due date.
func (a *InventoryAlertService) CheckOverdueBills(ctx context.Context) (*OverdueSummary, error) {
	now := a.now()
	bills, err := a.billRepo.ListOverdue(ctx, now, scanLimit)
	if err != nil {
		logrus.WithError(err).Error("failed to list overdue bills")
		return nil, err
	}

	summary := &OverdueSummary{Count: len(bills)}
	for _, b := range bills {
		b.Derive(now)
		if late := -b.DaysUntilDue; late > summary.MaxDaysLate || summary.OldestBill == "" {
			summary.MaxDaysLate = late
			summary.OldestBill = b.BillNumber
		}
	}
	return summary, nil
}

// ScheduledLowStockCheck runs one low-stock scan.
func (a *InventoryAlertService) ScheduledLowStockCheck(ctx context.Context) error {
	alerts, err := a.CheckLowStock(ctx)
	if err != nil {
		return err
	}
	a.LogLowStockAlerts(alerts)
	logrus.WithField("count", len(alerts)).Info("low stock check completed")
	return nil
}

// ScheduledOverdueCheck runs one overdue-bill scan.
func (a *InventoryAlertService) ScheduledOverdueCheck(ctx context.Context) error {
	summary, err := a.CheckOverdueBills(ctx)
	if err != nil {
		return err
	}
	entry := logrus.WithField("count", summary.Count)
	if summary.Count > 0 {
		entry.WithFields(logrus.Fields{
			"oldest_bill":   summary.OldestBill,
			"max_days_late": summary.MaxDaysLate,
		}).Warn("overdue bills pending payment")
		return nil
	}
	entry.Info("overdue check completed")
	return nil
}
