// Package messaging publishes events to a message broker behind the
// Publisher interface. NATS, Kafka, NSQ and Google Pub/Sub are supported and
// selected by driver name through NewFromDriver.
package messaging
