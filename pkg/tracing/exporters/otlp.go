package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
)

// Supported collector protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Collector ports used when no endpoint is configured.
const (
	defaultGRPCEndpoint = "localhost:4317"
	defaultHTTPEndpoint = "localhost:4318"
	defaultTimeout      = 10 * time.Second
)

// OTLPConfig describes the collector fern ships spans to.
type OTLPConfig struct {
	// Endpoint is host:port, or a full URL with scheme. Empty picks the local collector port for Protocol.
	Endpoint string
	Protocol string
	// Insecure disables TLS. A URL endpoint decides this by its scheme instead.
	Insecure bool
	// Headers go on every export, typically collector auth.
	Headers map[string]string
	Timeout time.Duration
	// UserAgent identifies the service to the collector.
	UserAgent string
}

func (c OTLPConfig) withDefaults() OTLPConfig {
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	if c.Protocol == "" {
		c.Protocol = ProtocolGRPC
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultGRPCEndpoint
		if c.Protocol == ProtocolHTTP {
			c.Endpoint = defaultHTTPEndpoint
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

func (c OTLPConfig) isURL() bool {
	return strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://")
}

// NewOTLPExporter creates a span exporter for the configured collector. No
// connection is made until the first export.
func NewOTLPExporter(ctx context.Context, config OTLPConfig) (*otlptrace.Exporter, error) {
	config = config.withDefaults()
	switch config.Protocol {
	case ProtocolGRPC:
		return otlptracegrpc.New(ctx, grpcOptions(config)...)
	case ProtocolHTTP:
		return otlptracehttp.New(ctx, httpOptions(config)...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s (use %q or %q)", config.Protocol, ProtocolGRPC, ProtocolHTTP)
	}
}

func grpcOptions(config OTLPConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithTimeout(config.Timeout),
		otlptracegrpc.WithCompressor("gzip"),
	}
	if config.isURL() {
		opts = append(opts, otlptracegrpc.WithEndpointURL(config.Endpoint))
	} else {
		opts = append(opts, otlptracegrpc.WithEndpoint(config.Endpoint))
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
	}
	if config.UserAgent != "" {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithUserAgent(config.UserAgent)))
	}
	if len(config.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
	}
	return opts
}

func httpOptions(config OTLPConfig) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(config.Timeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if config.isURL() {
		opts = append(opts, otlptracehttp.WithEndpointURL(config.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}
	headers := make(map[string]string, len(config.Headers)+1)
	for k, v := range config.Headers {
		headers[k] = v
	}
	if config.UserAgent != "" {
		headers["User-Agent"] = config.UserAgent
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return opts
}
