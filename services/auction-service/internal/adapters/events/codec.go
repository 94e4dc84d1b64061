package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	pkgevents "github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
)

// EncodeBidEvent builds the broker payload of a bid event. Amounts travel as
// decimal strings and times as RFC 3339 with nanoseconds.
func EncodeBidEvent(e bids.BidEvent) ([]byte, error) {
	fields := map[string]any{
		"type":         string(e.Type),
		"auctionId":    e.AuctionID,
		"productId":    e.ProductID.String(),
		"bidId":        e.BidID,
		"userId":       e.UserID.String(),
		"customerName": e.CustomerName,
		"amount":       e.Amount.String(),
		"currentPrice": e.CurrentPrice.String(),
		"bidCount":     e.BidCount,
		"endDate":      e.EndDate.UTC().Format(time.RFC3339Nano),
		"extended":     e.Extended,
		"timestamp":    e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.PreviousAmount != nil {
		fields["previousAmount"] = e.PreviousAmount.String()
	}
	if e.PreviousLeader != nil {
		fields["previousLeader"] = e.PreviousLeader.String()
	}
	return pkgevents.EncodePayload(fields)
}

// DecodeBidEvent is the inverse of EncodeBidEvent.
func DecodeBidEvent(body []byte) (bids.BidEvent, error) {
	s, err := pkgevents.DecodePayload(body)
	if err != nil {
		return bids.BidEvent{}, err
	}
	d := structDecoder{fields: s.GetFields()}

	e := bids.BidEvent{
		Type:         bids.EventType(d.str("type")),
		AuctionID:    d.str("auctionId"),
		ProductID:    d.parseUUID("productId"),
		BidID:        d.str("bidId"),
		UserID:       d.parseUUID("userId"),
		CustomerName: d.str("customerName"),
		Amount:       d.parseDecimal("amount"),
		CurrentPrice: d.parseDecimal("currentPrice"),
		BidCount:     int(d.fields["bidCount"].GetNumberValue()),
		EndDate:      d.parseTime("endDate"),
		Extended:     d.fields["extended"].GetBoolValue(),
		Timestamp:    d.parseTime("timestamp"),
	}
	if _, ok := d.fields["previousAmount"]; ok {
		amount := d.parseDecimal("previousAmount")
		e.PreviousAmount = &amount
	}
	if _, ok := d.fields["previousLeader"]; ok {
		leader := d.parseUUID("previousLeader")
		e.PreviousLeader = &leader
	}
	if d.err != nil {
		return bids.BidEvent{}, fmt.Errorf("malformed bid event: %w", d.err)
	}
	return e, nil
}

// structDecoder keeps the first conversion error.
type structDecoder struct {
	fields map[string]*structpb.Value
	err    error
}

func (d *structDecoder) str(key string) string {
	return d.fields[key].GetStringValue()
}

func (d *structDecoder) parseUUID(key string) uuid.UUID {
	id, err := uuid.Parse(d.str(key))
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
	return id
}

func (d *structDecoder) parseDecimal(key string) decimal.Decimal {
	v, err := decimal.NewFromString(d.str(key))
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (d *structDecoder) parseTime(key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, d.str(key))
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
	return t
}
