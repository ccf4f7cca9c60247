package ports

// Metric names understood by Observability implementations.
const (
	MetricRelayPublished     = "bridge_relay_published_total"
	MetricRelayPublishFailed = "bridge_relay_publish_failed_total"
	MetricRelaySkipped       = "bridge_relay_skipped_cycles_total"
	MetricRelayBusConnected  = "bridge_relay_bus_connected"

	MetricIngestInserted      = "bridge_ingest_inserted_total"
	MetricIngestInsertFailed  = "bridge_ingest_insert_failed_total"
	MetricIngestDropped       = "bridge_ingest_dropped_total"
	MetricIngestRetries       = "bridge_ingest_store_retries_total"
	MetricIngestQueueLength   = "bridge_ingest_queue_length"
	MetricIngestInsertLatency = "bridge_ingest_insert_latency_seconds"

	MetricBroadcastClients = "bridge_broadcast_clients"
	MetricBroadcastFrames  = "bridge_broadcast_frames_total"
	MetricBroadcastRows    = "bridge_broadcast_rows_total"

	MetricSimulatorWrites = "bridge_simulator_writes_total"

	MetricStoreOpenConns = "bridge_store_open_connections"
)
