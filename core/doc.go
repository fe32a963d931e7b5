// Package core contains the relay's contracts, entities and orchestration:
// ingestion into the durable queue, the dispatch cycle and its removal policy.
// Storage, HTTP and job-runtime adapters depend on this package; core must not
// depend on them.
package core
