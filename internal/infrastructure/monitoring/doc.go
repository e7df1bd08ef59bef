/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the
kernel, tracking syscalls, message traffic, capability lifecycle, and
live object counts.

# Features

- Syscall metrics (counts by operation and result, latency)
- Message metrics (sent/received, payload sizes, blocked tasks)
- Capability metrics (live entries, revocations, transfers)
- Object gauges (processes, endpoints, regions, queue depth)
- Monitor API request metrics

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time syscalls
	timer := monitoring.NewTimer(metrics, "send")
	// ... perform operation ...
	timer.Stop("ok")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
