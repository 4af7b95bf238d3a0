// Package broker publishes donorguard events to RabbitMQ.
//
// [Producer] is shared by the OTP notifier and the abuse sink. When no
// broker URL is configured the server wires [LogPublisher] instead so
// startup never depends on RabbitMQ being reachable.
package broker
