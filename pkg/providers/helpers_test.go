package providers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func getTestLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

func newTestClient() *httpclient.Client {
	return httpclient.NewClient(httpclient.DefaultConfig(), getTestLogger())
}

func newTestEvaluator() *expressions.Evaluator {
	return expressions.NewEvaluator()
}

// testSettings points every endpoint at srv and lifts rate limits out of the way.
func testSettings(srv *httptest.Server) providers.Settings {
	return providers.Settings{
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		RedirectURI:       "http://localhost:8000/api/v1/integrations/test/oauth2callback",
		AuthURL:           srv.URL + "/oauth/authorize",
		TokenURL:          srv.URL + "/oauth/token",
		APIURL:            srv.URL,
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
		FanOutLimit:       1,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// recordSpans routes package spans into an in-memory recorder for the rest of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tracing.SetTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test"))
	t.Cleanup(func() { tracing.SetTracer(nil) })
	return recorder
}

func endedSpan(recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}
