package notify

import (
	"fmt"
	"strings"
)

// Render produces the outgoing message for a job. The wording follows the
// storefront's customer copy; email messages start with their own headers.
func Render(j Job) string {
	switch j.Channel {
	case ChannelEmail:
		return renderEmail(j)
	default:
		return renderSMS(j)
	}
}

func renderSMS(j Job) string {
	p := j.Payload
	switch j.Kind {
	case KindOrderPlaced:
		return fmt.Sprintf("Order received! Your order #%s totaling %s has been received and is being processed. Thank you for shopping with us!",
			p.OrderNumber, kes(p.TotalCents))
	case KindOrderConfirmed:
		return fmt.Sprintf("Your order #%s has been confirmed and will be prepared shortly.", p.OrderNumber)
	case KindOrderShipped:
		msg := fmt.Sprintf("Good news! Your order #%s has been shipped.", p.OrderNumber)
		if p.TrackingNumber != "" {
			msg += " Tracking number: " + p.TrackingNumber
		}
		return msg
	case KindOrderDelivered:
		return fmt.Sprintf("Your order #%s has been delivered. Enjoy!", p.OrderNumber)
	case KindOrderCancelled:
		return fmt.Sprintf("Your order #%s has been cancelled. If this was not you, please contact support.", p.OrderNumber)
	default:
		return fmt.Sprintf("Update: your order #%s is now %s.", p.OrderNumber, p.Status)
	}
}

func renderEmail(j Job) string {
	p := j.Payload
	if j.Kind == KindAdminNewOrder {
		var b strings.Builder
		fmt.Fprintf(&b, "Subject: New order #%s\r\n\r\n", p.OrderNumber)
		fmt.Fprintf(&b, "Order #%s has been placed by customer %s.\r\n", p.OrderNumber, p.CustomerID)
		fmt.Fprintf(&b, "Order total: %s\r\n", kes(p.TotalCents))
		return b.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: Order #%s %s\r\n\r\n", p.OrderNumber, subjectVerb(j.Kind))
	fmt.Fprintf(&b, "Hello,\r\n\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", renderSMS(j))
	fmt.Fprintf(&b, "Order total: %s\r\n", kes(p.TotalCents))
	if p.TrackingNumber != "" {
		fmt.Fprintf(&b, "Tracking number: %s\r\n", p.TrackingNumber)
	}
	fmt.Fprintf(&b, "\r\nThank you for shopping with us.\r\n")
	return b.String()
}

func subjectVerb(k EventKind) string {
	switch k {
	case KindOrderPlaced:
		return "received"
	case KindOrderConfirmed:
		return "confirmed"
	case KindOrderProcessing:
		return "processing"
	case KindOrderShipped:
		return "shipped"
	case KindOrderDelivered:
		return "delivered"
	case KindOrderCancelled:
		return "cancelled"
	default:
		return "updated"
	}
}

func kes(cents int) string {
	return fmt.Sprintf("KES %d.%02d", cents/100, cents%100)
}
