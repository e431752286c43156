package metrics

import "context"

// NoopCollector discards everything.
type NoopCollector struct{}

func (NoopCollector) ConnectionOpened()         {}
func (NoopCollector) ConnectionClosed()         {}
func (NoopCollector) CommandProcessed(string)   {}
func (NoopCollector) MessageAccepted(int64)     {}
func (NoopCollector) MessageRejected(string)    {}
func (NoopCollector) DeliveryAttempt(bool)      {}
func (NoopCollector) DeliveryCompleted(string)  {}
func (NoopCollector) DeadLettered(string, bool) {}

// NoopServer is used when metrics are disabled.
type NoopServer struct{}

// Start returns immediately.
func (NoopServer) Start(context.Context) error { return nil }

// Shutdown returns immediately.
func (NoopServer) Shutdown(context.Context) error { return nil }
