package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealAndDecode(t *testing.T) {
	now := time.Date(2025, 9, 16, 19, 0, 0, 0, time.FixedZone("KST", 9*3600))
	ev, err := Seal(&CouponApplied{OrderID: 42, DiscountAmount: decimal.NewFromInt(5000), OrderTotal: decimal.NewFromInt(39000)}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, TypeCouponApplied, ev.EventType)
	assert.Equal(t, time.UTC, ev.EventTime.Location())

	raw, err := ev.Marshal()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, uint64(42), got.OrderID)
	applied, ok := got.Payload.(*CouponApplied)
	require.True(t, ok)
	assert.True(t, applied.DiscountAmount.Equal(decimal.NewFromInt(5000)))
}

func TestEnvelopeWireFields(t *testing.T) {
	ev, err := Seal(&PaymentFailed{OrderID: 7, ErrorMessage: "declined"}, time.Now())
	require.NoError(t, err)
	raw, err := ev.Marshal()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"event_id", "event_type", "order_id", "event_time", "payload"} {
		assert.Contains(t, fields, k)
	}
	assert.JSONEq(t, `{"order_id":7,"error_message":"declined"}`, string(fields["payload"]))
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	cases := map[string]string{
		"not json":          `{oops`,
		"no event id":       `{"event_type":"order.created","payload":{"order_id":1}}`,
		"unknown type":      `{"event_id":"e","event_type":"order.shipped","payload":{"order_id":1}}`,
		"no payload":        `{"event_id":"e","event_type":"order.coupon.failed"}`,
		"unknown field":     `{"event_id":"e","event_type":"order.coupon.failed","payload":{"order_id":1,"extra":true}}`,
		"no order id":       `{"event_id":"e","event_type":"order.coupon.failed","payload":{"error_message":"x"}}`,
		"order id mismatch": `{"event_id":"e","event_type":"order.coupon.failed","order_id":2,"payload":{"order_id":1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestFailurePayloads(t *testing.T) {
	var fp FailurePayload = &InventoryFailed{OrderID: 1, ErrorMessage: "Product 2: insufficient stock"}
	assert.Equal(t, "Product 2: insufficient stock", fp.Reason())
	assert.Equal(t, TypeInventoryFailed, fp.EventType())
}

func TestTopicsOverrides(t *testing.T) {
	topics, err := DefaultTopics().WithOverrides(map[string]string{"order.created": "shop.order.created"})
	require.NoError(t, err)
	assert.Equal(t, "shop.order.created", topics.Topic(TypeOrderCreated))
	assert.Equal(t, "order.payment.failed", topics.Topic(TypePaymentFailed))
	assert.Equal(t, []string{"shop.order.created", "order.coupon.applied"}, topics.TopicsOf(TypeOrderCreated, TypeCouponApplied))

	_, err = DefaultTopics().WithOverrides(map[string]string{"order.shipped": "x"})
	assert.Error(t, err)
}
