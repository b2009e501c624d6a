package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered proxy connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered proxy connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// PROXY_CONN_SET_TCP_NO_DELAY = true sets proxy connections to TcpNoDelay
	PROXY_CONN_SET_TCP_NO_DELAY = true
	// PROXY_CONN_WRITE_BUFFER_SIZE is the write buffer size of proxy connections
	PROXY_CONN_WRITE_BUFFER_SIZE = 1024 * 1024
	// PROXY_CONN_READ_BUFFER_SIZE is the read buffer size of proxy connections
	PROXY_CONN_READ_BUFFER_SIZE = 1024 * 1024

	// For the main loop
	// TICK_INTERVAL is the tick interval of the main routine => affects timer resolution
	TICK_INTERVAL = time.Millisecond * 10

	// For async job workers
	// ASYNC_JOB_QUEUE_MAXLEN is the max len of async job queues
	ASYNC_JOB_QUEUE_MAXLEN = 10000

	// For messaging
	// MESSAGE_QUEUE_SIZE is the max inbound envelope queue length
	MESSAGE_QUEUE_SIZE = 1000
	// MAX_ENVELOPE_PAYLOAD_LEN is the max payload length carried in one Forward envelope
	MAX_ENVELOPE_PAYLOAD_LEN = 32767

	// For relocation
	// RELOCATION_DEFAULT_MAX_ATTEMPTS bounds resends of a relocation message
	RELOCATION_DEFAULT_MAX_ATTEMPTS = 3
	// RELOCATION_DEFAULT_RETRY_DELAY is the fixed delay between relocation resends
	RELOCATION_DEFAULT_RETRY_DELAY = time.Second * 2
	// RELOCATION_DEFAULT_SETTLE_DELAY lets the player session establish before the in-world teleport
	RELOCATION_DEFAULT_SETTLE_DELAY = time.Millisecond * 500

	// For storage
	// STORAGE_QUEUE_WARN_THRESHOLD warns when the storage operation queue grows beyond this length
	STORAGE_QUEUE_WARN_THRESHOLD = 100
)

// Debug Options
const (
	DEBUG_PACKETS   = false
	DEBUG_SAVE_LOAD = false
)
