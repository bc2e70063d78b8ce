/*
Package events provides an in-memory broker for pool lifecycle events.

Producers (the HTTP API when a pool manifest is stored or removed) publish
events such as vip.created or member.deleted; the reconciler's Dispatcher
subscribes and turns each event into an engine call.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(events.NewEvent(events.EventVipCreated, "p1"))

Delivery is lossless and ordered per subscriber. Each subscriber has its
own unbounded queue drained by a goroutine, so a slow subscriber never
blocks Publish or other subscribers, and never misses an event either.
Unsubscribe discards what the subscriber has not yet received.

Member events carry the member itself, since after a delete the control
plane no longer knows it.
*/
package events
