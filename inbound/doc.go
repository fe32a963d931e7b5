// Package inbound exposes the relay over HTTP.
//
// Every POST is captured verbatim and handed to the ingestor; the caller is
// answered before persistence completes. Admin routes for queue inspection
// and manual dispatch are mounted only when enabled.
package inbound
