package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: true, SampleRatio: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{collection}/containers/{container}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("GET /livez", func(http.ResponseWriter, *http.Request) {})
	h := Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Empty(t, sr.Ended())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/collections/beeldbank/containers/abc", nil))
	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, "beeldbank", attrs["augeias.collection"].AsString())
	require.Equal(t, "abc", attrs["augeias.container"].AsString())
	require.EqualValues(t, http.StatusTeapot, attrs["http.status_code"].AsInt64())
	require.Equal(t, "GET /collections/{collection}/containers/{container}", attrs["http.route"].AsString())
}

func TestEndpointHelpers(t *testing.T) {
	require.Equal(t, "collector:4317", stripScheme("https://collector:4317"))
	require.Equal(t, "localhost:4318", stripScheme("HTTP://localhost:4318"))
	require.True(t, isInsecure("http://collector:4318"))
	require.True(t, isInsecure("localhost:4317"))
	require.False(t, isInsecure("collector.example.org:4317"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, "10.0.0.1", clientIP(r))
}
