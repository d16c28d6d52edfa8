// Package mqtt provides the optional fleet event mirror for otacore.
//
// When enabled, the orchestration engine publishes device status transitions
// and firmware catalogue changes to an MQTT broker so external dashboards
// and alerting can follow the fleet without polling the admin API. The
// mirror is strictly one-way: otacore never subscribes, and a publish
// failure is logged by the caller and otherwise ignored.
//
// Connection management (auto-reconnect, LWT on the system status topic)
// is handled by the paho client underneath.
package mqtt
