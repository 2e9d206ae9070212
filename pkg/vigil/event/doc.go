// Package event provides the pub/sub primitives the vigil engines attach to.
//
// # Overview
//
// This package supplies the pieces shared by every vigil consumer:
//
//   - Event interface with correlation and causation tracking
//   - Envelope, the concrete event carried on the bus
//   - Bus interface with an in-memory LocalBus implementation
//   - Registry for topic schemas and validation
//   - Handler adapters and a protective middleware chain
//
// # Design Influences
//
//   - AWS EventBridge: topic naming, structured failure payloads
//   - Apache Kafka: fan-out, per-topic ordering, correlation IDs
//   - Confluent Schema Registry: topic schema registration
//
// # Events
//
// Envelope is the single concrete event type. Payloads are arbitrary; the
// topic payload structs in topics.go document the shapes the vigil engines
// consume and publish.
//
//	evt := event.New(event.TopicErrorSystem, "extractor", event.SystemErrorPayload{
//	    Error:     "fetch failed",
//	    Component: "extractor",
//	    Severity:  "CRITICAL",
//	})
//
// Events derived from another event inherit its correlation chain:
//
//	reply := event.NewFromParent(evt, event.TopicErrorClassified, "vigil", payload)
//	// reply.CorrelationID() == evt.CorrelationID()
//	// reply.CausationID() == evt.ID()
//
// # Bus
//
// LocalBus is an in-memory bus with per-subscription buffered delivery.
// Events for one topic reach each subscriber in publish order; delivery is
// best effort, at most once per subscriber.
//
//	bus := event.NewBus(event.BusConfig{BufferSize: 256})
//	sub := bus.Subscribe([]string{event.TopicWorkStarted}, handler)
//	defer sub.Unsubscribe()
//	bus.Publish(ctx, evt)
//
// Any transport satisfying the Bus interface can replace LocalBus.
//
// # Middleware
//
// Handlers attached by the monitor are wrapped in a protective chain: a
// panic or error inside one subscriber becomes a structured Result and a
// log entry, and never prevents other subscribers from seeing the event.
//
//	h := event.ChainMiddleware(handler,
//	    event.RecoveryMiddleware(),
//	    event.ProtectMiddleware(onResult),
//	)
package event
