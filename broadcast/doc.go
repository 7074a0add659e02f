// Package broadcast announces authorization-relevant changes to every
// interested cache.
//
// A Broadcaster delivers each published Update synchronously to local
// subscribers and, when a Transport is configured, hands the CBOR encoding
// of the same Update to the transport for other instances. Run consumes the
// transport and fans remote updates out to the same subscribers, skipping
// echoes of updates this instance published itself.
//
// Delivery is at-least-once and unordered. Handlers must be idempotent;
// cache TTLs bound the staleness left by a lost update.
//
// Transports live in sub-packages: redisbus (Redis Pub/Sub) and kafkabus
// (Kafka via sarama).
package broadcast
