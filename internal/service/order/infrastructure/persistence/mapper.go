package persistence

import (
	"encoding/json"

	"gorm.io/datatypes"

	"ordersaga/internal/service/order/domain"
)

func toDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	o := &domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		Customer: domain.Customer{
			ID:    m.CustomerID,
			Name:  m.CustomerName,
			Email: m.CustomerEmail,
			Phone: m.CustomerPhone,
		},
		CouponCode:           m.CouponCode,
		PaymentMethod:        m.PaymentMethod,
		Notes:                m.Notes,
		Subtotal:             m.Subtotal,
		Tax:                  m.Tax,
		Discount:             m.Discount,
		Total:                m.Total,
		Status:               domain.Status(m.Status),
		IsCompleted:          m.IsCompleted,
		FailureReason:        m.FailureReason,
		CouponProcessedAt:    m.CouponProcessedAt,
		InventoryProcessedAt: m.InventoryProcessedAt,
		PaymentProcessedAt:   m.PaymentProcessedAt,
		NotificationSentAt:   m.NotificationSentAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Total:       it.Total,
		})
	}
	return o
}

func fromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		CustomerID:           o.Customer.ID,
		CustomerName:         o.Customer.Name,
		CustomerEmail:        o.Customer.Email,
		CustomerPhone:        o.Customer.Phone,
		CouponCode:           o.CouponCode,
		PaymentMethod:        o.PaymentMethod,
		Notes:                o.Notes,
		Subtotal:             o.Subtotal,
		Tax:                  o.Tax,
		Discount:             o.Discount,
		Total:                o.Total,
		Status:               string(o.Status),
		IsCompleted:          o.IsCompleted,
		FailureReason:        o.FailureReason,
		CouponProcessedAt:    o.CouponProcessedAt,
		InventoryProcessedAt: o.InventoryProcessedAt,
		PaymentProcessedAt:   o.PaymentProcessedAt,
		NotificationSentAt:   o.NotificationSentAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Total:       it.Total,
		})
	}
	return m
}

// orderColumns are the columns Save writes; items and creation data are fixed.
func orderColumns(o *domain.Order) map[string]any {
	return map[string]any{
		"coupon_code":            o.CouponCode,
		"payment_method":         o.PaymentMethod,
		"notes":                  o.Notes,
		"subtotal":               o.Subtotal,
		"tax":                    o.Tax,
		"discount":               o.Discount,
		"total":                  o.Total,
		"status":                 string(o.Status),
		"is_completed":           o.IsCompleted,
		"failure_reason":         o.FailureReason,
		"coupon_processed_at":    o.CouponProcessedAt,
		"inventory_processed_at": o.InventoryProcessedAt,
		"payment_processed_at":   o.PaymentProcessedAt,
		"notification_sent_at":   o.NotificationSentAt,
		"updated_at":             o.UpdatedAt,
	}
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{ID: m.ID, Name: m.Name, SKU: m.SKU, Price: m.Price, Stock: m.Stock, IsActive: m.IsActive}
}

func fromDomainProduct(p *domain.Product) *ProductModel {
	return &ProductModel{ID: p.ID, Name: p.Name, SKU: p.SKU, Price: p.Price, Stock: p.Stock, IsActive: p.IsActive}
}

func toDomainCoupon(m *CouponModel) *domain.Coupon {
	return &domain.Coupon{
		ID:             m.ID,
		Code:           m.Code,
		Name:           m.Name,
		Type:           domain.CouponType(m.Type),
		Value:          m.Value,
		MinOrderAmount: m.MinOrderAmount,
		MaxUses:        m.MaxUses,
		UsedCount:      m.UsedCount,
		StartsAt:       m.StartsAt,
		ExpiresAt:      m.ExpiresAt,
		IsActive:       m.IsActive,
		Rule:           m.Rule,
	}
}

func fromDomainCoupon(c *domain.Coupon) *CouponModel {
	return &CouponModel{
		ID:             c.ID,
		Code:           c.Code,
		Name:           c.Name,
		Type:           string(c.Type),
		Value:          c.Value,
		MinOrderAmount: c.MinOrderAmount,
		MaxUses:        c.MaxUses,
		UsedCount:      c.UsedCount,
		StartsAt:       c.StartsAt,
		ExpiresAt:      c.ExpiresAt,
		IsActive:       c.IsActive,
		Rule:           c.Rule,
	}
}

func toDomainPayment(m *PaymentModel) domain.Payment {
	p := domain.Payment{
		ID:            m.ID,
		OrderID:       m.OrderID,
		TransactionID: m.TransactionID,
		Method:        m.Method,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        domain.PaymentStatus(m.Status),
		CreatedAt:     m.CreatedAt,
	}
	if len(m.Details) > 0 {
		_ = json.Unmarshal(m.Details, &p.Details)
	}
	return p
}

func fromDomainPayment(p *domain.Payment) (*PaymentModel, error) {
	m := &PaymentModel{
		ID:            p.ID,
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Method:        p.Method,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
	}
	if p.Details != nil {
		raw, err := json.Marshal(p.Details)
		if err != nil {
			return nil, err
		}
		m.Details = datatypes.JSON(raw)
	}
	return m, nil
}

func toDomainNotification(m *NotificationModel) domain.Notification {
	return domain.Notification{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Channel:   domain.Channel(m.Channel),
		Recipient: m.Recipient,
		Subject:   m.Subject,
		Content:   m.Content,
		IsSent:    m.IsSent,
		SentAt:    m.SentAt,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
	}
}

func fromDomainNotification(n *domain.Notification) *NotificationModel {
	return &NotificationModel{
		ID:        n.ID,
		OrderID:   n.OrderID,
		Channel:   string(n.Channel),
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Content:   n.Content,
		IsSent:    n.IsSent,
		SentAt:    n.SentAt,
		Error:     n.Error,
		CreatedAt: n.CreatedAt,
	}
}

func toDomainEvent(m *OrderEventModel) domain.OrderEvent {
	return domain.OrderEvent{
		ID:           m.ID,
		OrderID:      m.OrderID,
		EventType:    m.EventType,
		Payload:      json.RawMessage(m.Payload),
		IsProcessed:  m.IsProcessed,
		Status:       domain.EventStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		ProcessedAt:  m.ProcessedAt,
		CreatedAt:    m.CreatedAt,
	}
}

func fromDomainEvent(e *domain.OrderEvent) *OrderEventModel {
	m := &OrderEventModel{
		ID:           e.ID,
		OrderID:      e.OrderID,
		EventType:    e.EventType,
		IsProcessed:  e.IsProcessed,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		ProcessedAt:  e.ProcessedAt,
		CreatedAt:    e.CreatedAt,
	}
	if len(e.Payload) > 0 {
		m.Payload = datatypes.JSON(e.Payload)
	}
	return m
}
