// Package metrics declares the Prometheus collectors exported by leaddesk
// and the handler that serves them.
package metrics
