package messaging

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	pb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestNewFromDriver_Unknown(t *testing.T) {
	_, err := NewFromDriver(context.Background(), "rabbitmq", FactoryOptions{})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNewFromDriver_MissingConfig(t *testing.T) {
	tests := map[string]error{
		DriverNATS:         ErrNATSURLRequired,
		DriverKafka:        ErrKafkaBrokersRequired,
		DriverNSQ:          ErrNSQProducerAddrRequired,
		DriverGooglePubSub: ErrPubSubProjectIDRequired,
	}

	for driver, want := range tests {
		t.Run(driver, func(t *testing.T) {
			_, err := NewFromDriver(context.Background(), " "+driver+" ", FactoryOptions{})
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestKafka_PublishValidation(t *testing.T) {
	k, err := NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)

	_, err = k.Publish(context.Background(), "", OutgoingMessage{})
	assert.ErrorIs(t, err, ErrKafkaTopicRequired)

	_, err = k.Publish(context.Background(), "otp", OutgoingMessage{Delay: time.Second})
	assert.ErrorIs(t, err, ErrUnsupported)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	_, err = k.Publish(context.Background(), "otp", OutgoingMessage{Body: []byte("x")})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNSQ_PublishUnreachable(t *testing.T) {
	n, err := NewNSQ(NSQConfig{ProducerAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	defer n.Close()

	_, err = n.Publish(context.Background(), "", OutgoingMessage{})
	assert.ErrorIs(t, err, ErrNSQTopicRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.Publish(ctx, "otp", OutgoingMessage{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = n.Publish(context.Background(), "otp", OutgoingMessage{Body: []byte("x")})
	assert.Error(t, err)
}

func TestNATS_ConnectFailure(t *testing.T) {
	_, err := NewNATS(NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestPubSub_Publish(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	_, err := srv.GServer.CreateTopic(ctx, &pb.Topic{Name: "projects/otpgate/topics/otp-events"})
	require.NoError(t, err)

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "otpgate", option.WithGRPCConn(conn))
	require.NoError(t, err)

	p, err := NewPubSub(ctx, PubSubConfig{Client: client})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	res, err := p.Publish(ctx, "otp-events", OutgoingMessage{
		Body:    []byte(`{"kind":"issued"}`),
		Headers: []Header{{Key: "kind", Value: []byte("issued")}, {Key: "", Value: []byte("dropped")}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, `{"kind":"issued"}`, string(msgs[0].Data))
	assert.Equal(t, map[string]string{"kind": "issued"}, msgs[0].Attributes)

	_, err = p.Publish(ctx, "otp-events", OutgoingMessage{Delay: time.Second})
	assert.ErrorIs(t, err, ErrUnsupported)
}
