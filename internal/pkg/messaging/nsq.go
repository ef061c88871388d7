package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

var (
	ErrNSQTopicRequired        = errors.New("messaging: nsq topic is required")
	ErrNSQProducerAddrRequired = errors.New("messaging: nsq producer address is required")
)

type NSQConfig struct {
	ProducerAddr string
	Config       *nsq.Config
}

// NSQ publishes to a single nsqd.
type NSQ struct {
	producer *nsq.Producer
}

func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	if cfg.ProducerAddr == "" {
		return nil, ErrNSQProducerAddrRequired
	}

	ncfg := cfg.Config
	if ncfg == nil {
		ncfg = nsq.NewConfig()
	}

	p, err := nsq.NewProducer(cfg.ProducerAddr, ncfg)
	if err != nil {
		return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
	}
	p.SetLoggerLevel(nsq.LogLevelError)

	return &NSQ{producer: p}, nil
}

func (n *NSQ) Close() error {
	n.producer.Stop()
	return nil
}

// Publish sends msg. go-nsq has no context support, so ctx is only checked
// before the blocking call. Headers are not supported by NSQ and are dropped.
func (n *NSQ) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if destination == "" {
		return PublishResult{}, ErrNSQTopicRequired
	}
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}

	var err error
	if msg.Delay > 0 {
		err = n.producer.DeferredPublish(destination, msg.Delay, msg.Body)
	} else {
		err = n.producer.Publish(destination, msg.Body)
	}
	if err != nil {
		if errors.Is(err, nsq.ErrStopped) {
			return PublishResult{}, ErrClosed
		}
		return PublishResult{}, fmt.Errorf("messaging: nsq publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: time.Now()}, nil
}
