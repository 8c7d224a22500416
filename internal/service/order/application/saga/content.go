package saga

import (
	"fmt"
	"strings"

	"ordersaga/internal/service/order/domain"
)

func confirmationSubject(o *domain.Order) string {
	return fmt.Sprintf("Order confirmation #%s", o.OrderNumber)
}

// confirmationEmail renders the order summary sent after payment.
func confirmationEmail(o *domain.Order, currency string) string {
	var b strings.Builder
	name := o.Customer.Name
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "Thank you for your order #%s.\n\n", o.OrderNumber)
	b.WriteString("Items:\n")
	for _, it := range o.Items {
		label := it.ProductName
		if label == "" {
			label = fmt.Sprintf("product %d", it.ProductID)
		}
		fmt.Fprintf(&b, "- %s x %d: %s %s\n", label, it.Quantity, it.Total.StringFixed(2), currency)
	}
	fmt.Fprintf(&b, "\nSubtotal: %s %s\n", o.Subtotal.StringFixed(2), currency)
	fmt.Fprintf(&b, "Tax: %s %s\n", o.Tax.StringFixed(2), currency)
	if o.Discount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s %s\n", o.Discount.StringFixed(2), currency)
	}
	fmt.Fprintf(&b, "Total: %s %s\n", o.Total.StringFixed(2), currency)
	return b.String()
}

func confirmationSMS(o *domain.Order, currency string) string {
	return fmt.Sprintf("Your order #%s has been confirmed. Total: %s %s", o.OrderNumber, o.Total.StringFixed(2), currency)
}

func failureSubject(o *domain.Order) string {
	return fmt.Sprintf("Order #%s could not be processed", o.OrderNumber)
}

func failureEmail(o *domain.Order, reason string) string {
	return fmt.Sprintf("We are sorry, your order #%s could not be completed.\n\nReason: %s", o.OrderNumber, reason)
}

func failureSMS(o *domain.Order, reason string) string {
	return fmt.Sprintf("Your order #%s failed: %s", o.OrderNumber, reason)
}
