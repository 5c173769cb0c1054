// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package kafka delivers crud notifications to a Kafka topic. Messages are
// keyed by resource and entity key, so all mutations of one entity land in
// the same partition in order.
package kafka

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/crudkit-tech/crudkit/crud"
)

// Builder is a builder helper for the Notifier
type Builder struct {
	// Brokers is the list of broker addresses. This is mandatory.
	Brokers []string
	// Topic is the topic notifications are published to. This is mandatory.
	Topic string
}

// Notifier publishes crud notifications to Kafka. It implements
// crud.Notifier.
type Notifier struct {
	writer *kafka.Writer
}

// New realizes the notifier. It panics on an incomplete builder.
func New(bb *Builder) *Notifier {
	if len(bb.Brokers) == 0 {
		panic("Brokers are missing")
	}
	if bb.Topic == "" {
		panic("Topic is missing")
	}
	return &Notifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(bb.Brokers...),
			Topic:    bb.Topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Notify publishes one notification.
func (n *Notifier) Notify(ctx context.Context, notification crud.Notification) error {
	value, err := json.MarshalWithOption(notification, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notification.Resource + "/" + notification.Key),
		Value: value,
	})
}

// Close flushes pending messages and closes the writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}
