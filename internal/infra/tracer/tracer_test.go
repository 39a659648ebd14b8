package tracer

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"lawggle-ai/internal/infra/config"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TracerConfig
		wantNoop bool
		wantErr  bool
	}{
		{"disabled", config.TracerConfig{Enabled: false, Exporter: "stdout"}, true, false},
		{"noop exporter", config.TracerConfig{Enabled: true, Exporter: "noop"}, true, false},
		{"empty exporter", config.TracerConfig{Enabled: true}, true, false},
		{"stdout exporter", config.TracerConfig{Enabled: true, Exporter: "stdout"}, false, false},
		{"unsupported", config.TracerConfig{Enabled: true, Exporter: "zipkin"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), "lawggle-test", tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			defer shutdown(context.Background())

			_, isNoop := otel.GetTracerProvider().(noop.TracerProvider)
			if isNoop != tt.wantNoop {
				t.Errorf("noop provider = %v, want %v (%T)", isNoop, tt.wantNoop, otel.GetTracerProvider())
			}
		})
	}
}

func TestEndRecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, ok := StartSpan(context.Background(), "ok-span")
	ok.SetAttributes(StringAttr("thread.id", "t1"), IntAttr("tool_calls", 2), BoolAttr("stream", true))
	End(ok, nil)

	_, failed := StartSpan(context.Background(), "failed-span")
	End(failed, errors.New("upstream down"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok-span status = %v", spans[0].Status())
	}
	if len(spans[0].Attributes()) != 3 {
		t.Errorf("ok-span attrs = %v", spans[0].Attributes())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "upstream down" {
		t.Errorf("failed-span status = %v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Error("failed-span should carry an exception event")
	}
}
