// Package mqtt provides the outbound MQTT state feed for Hearth.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained publishing of canonical device state and the active mode
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Hearth treats MQTT as a mirror, not a bus: every confirmed device
// change and mode activation is published to a retained topic so that
// external automations and dashboards can observe the home without
// touching the REST API. Nothing in Hearth subscribes; the store stays
// the single source of truth.
//
//	hearth/core/device/{id}/state  — retained canonical device state
//	hearth/core/mode               — retained active home mode
//	hearth/system/status           — online/offline (LWT on crash)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	feed := mqtt.NewFeed(client, logger)
//	go feed.Run(ctx)
//	// wire feed as a control signal sink and mode sink
package mqtt
