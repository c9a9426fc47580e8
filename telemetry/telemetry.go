// Package telemetry exports translation spans to an OTLP/HTTP collector.
package telemetry

import (
	"context"
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "wasmlator"

// Client owns the tracer provider installed as the global otel provider.
type Client struct {
	provider *sdktrace.TracerProvider
	disabled bool // if true, spans are dropped by the default provider
}

// NewNoOpClient returns a client that leaves the global provider untouched.
func NewNoOpClient() *Client {
	return &Client{disabled: true}
}

// NewClient exports to the collector at endpoint (host:port).
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	if endpoint == "" {
		return NewNoOpClient(), nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter for %s: %w", endpoint, err)
	}
	log.Info(log.CliMonitoring, "telemetry enabled", "endpoint", endpoint)
	return newClient(sdktrace.WithBatcher(exp)), nil
}

func newClient(opts ...sdktrace.TracerProviderOption) *Client {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts = append(opts, sdktrace.WithResource(res))
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return &Client{provider: provider}
}

func (c *Client) Enabled() bool {
	return !c.disabled
}

// Close flushes pending spans and shuts the provider down.
func (c *Client) Close(ctx context.Context) error {
	if c.disabled || c.provider == nil {
		return nil
	}
	err := c.provider.Shutdown(ctx)
	c.provider = nil
	if err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
