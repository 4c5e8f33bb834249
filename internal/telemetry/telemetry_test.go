package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/probe"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestProbeSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	exporter := tracetest.NewInMemoryExporter()
	tp := install(exporter, "test")
	defer tp.Shutdown(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ex := probe.NewExecutor(srv.Client(), probe.Options{})
	site := catalog.Site{Name: "Local", URL: srv.URL + "/{}", Method: http.MethodGet, Detection: catalog.StatusRule(200)}
	ex.Run(context.Background(), site, "bob", time.Second)

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "probe Local", spans[0].Name)
}
