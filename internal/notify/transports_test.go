package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"auction-engine/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type fakeNATS struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.data = append(f.data, data)
	return nil
}

type fakeAMQPChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeAMQPChannel) Close() error {
	f.closed = true
	return nil
}

func TestNATSTransport_Deliver(t *testing.T) {
	nc := &fakeNATS{}
	transport := NewNATSTransport(nc)
	e := models.NewEvent(models.TopicNewBid, "a1", "", models.NewBidPayload{AuctionID: "a1", Amount: 80}, time.Now().UTC())

	require.NoError(t, transport.Deliver(context.Background(), e))
	require.Equal(t, []string{"auction.events.auction.newBid"}, nc.subjects)

	var got models.Event
	require.NoError(t, json.Unmarshal(nc.data[0], &got))
	require.Equal(t, e.ID, got.ID)

	nc.err = errors.New("nats: connection closed")
	require.Error(t, transport.Deliver(context.Background(), e))
}

func TestAMQPTransport_Deliver(t *testing.T) {
	ch := &fakeAMQPChannel{}
	transport := &AMQPTransport{ch: ch, exchange: "auction.events"}
	e := models.NewEvent(models.TopicAuctionEnded, "a1", "", models.AuctionEndedPayload{AuctionID: "a1", FinalBid: 50}, time.Now().UTC())

	require.NoError(t, transport.Deliver(context.Background(), e))
	require.Equal(t, "auction.events", ch.exchange)
	require.Equal(t, "auction.ended", ch.key)
	require.Equal(t, "application/json", ch.msg.ContentType)
	require.Equal(t, e.ID, ch.msg.MessageId)

	ch.err = errors.New("channel closed")
	require.Error(t, transport.Deliver(context.Background(), e))

	require.NoError(t, transport.Close())
	require.True(t, ch.closed)
}
