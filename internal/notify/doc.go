// Package notify delivers stage-change notifications to external sinks.
//
// Delivery is best effort. The Dispatcher queues notifications and hands them
// to a Sink from a small worker pool, so a slow or unreachable sink never
// holds up a transition. A full queue drops the notification.
package notify
