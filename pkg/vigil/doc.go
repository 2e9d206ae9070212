/*
Package vigil provides event-driven resilience and observability for
message-passing systems.

# Overview

vigil attaches a set of monitoring engines to an event bus. Components
publish failures, work lifecycle events, and tracking requests; the
engines consume them and answer with classified errors, circuit breaker
transitions, diagnostic suggestions, performance warnings, and query
results. No engine calls another directly: the bus is the only coupling
between them.

The engines are:

  - breaker: per-component circuit breakers, handler isolation, and a
    derived system health status
  - diagnose: fuzzy matching for unknown message types and rule-based
    routing failure analysis
  - perf: sampled work-unit timing with slow-processing, high-memory,
    and high-active-count warnings
  - track: a bounded, persisted record of bus traffic with query,
    export, and clear operations

# Basic Usage

Create a bus, attach a monitor, and publish events:

	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	monitor, err := vigil.New(bus, vigil.WithLogger(logger))
	if err != nil {
	    log.Fatal(err)
	}
	defer monitor.Close()

	if err := monitor.Start(ctx); err != nil {
	    log.Fatal(err)
	}

	bus.Publish(ctx, event.New(event.TopicErrorSystem, "extractor",
	    event.SystemErrorPayload{Component: "extractor", Error: "db gone"}))

	health := monitor.Health()

# Guarding Work

Components consult the breaker engine before doing work and report the
outcome after:

	eng := monitor.Breakers()
	if !eng.CanExecute("extractor") {
	    return errRejected
	}
	if err := doWork(); err != nil {
	    eng.ReportFailure("extractor", breaker.ErrorInfo{Message: err.Error()})
	    return err
	}
	eng.ReportSuccess("extractor")

# Queries and Requests

Synchronous status queries read engine state directly:

	health, err := monitor.Query(ctx, query.QuerySystemHealth, nil)

Tracking operations run over the bus; Requester blocks until the
matching completion event arrives:

	req := vigil.NewRequester(bus, "cli", 5*time.Second)
	defer req.Close()

	result, err := req.QueryEvents(ctx, map[string]any{"type": "WORK.FAILED"}, nil)

# Configuration

Engine settings load from YAML or JSON files through the config
package, or directly via typed per-engine options:

	cfg, _ := config.FromFile("vigil.yaml")
	monitor, err := vigil.New(bus, vigil.WithConfig(cfg))
*/
package vigil
