package tracing

import (
	"context"
	"strings"
	"testing"
)

func TestInitTracerRequiresServiceName(t *testing.T) {
	_, err := InitTracer(context.Background(), Config{})
	if err == nil {
		t.Fatalf("expected an error when ServiceName is empty")
	}
}

func TestInitTracerReturnsAShutdownFuncForStdoutExporter(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{
		ServiceName:  "dicehall-backend-test",
		TracesExport: "stdout",
	})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected a non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracerAcceptsNoneExporter(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{
		ServiceName:  "dicehall-backend-test",
		TracesExport: "none",
	})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	defer shutdown(context.Background())
}

func TestParseSamplerFromEnvDefaultsToAlwaysOnInDevelopment(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "")
	sampler := parseSamplerFromEnv("development")
	if sampler == nil {
		t.Fatalf("expected a non-nil sampler")
	}
	if !strings.HasPrefix(sampler.Description(), "ParentBased{root:AlwaysOnSampler") {
		t.Fatalf("expected a parent-based always-on sampler, got %q", sampler.Description())
	}
}

func TestParseSamplerFromEnvHonorsExplicitEnvVars(t *testing.T) {
	cases := []struct {
		name   string
		env    string
		arg    string
		appEnv string
	}{
		{"always_on", "always_on", "", "production"},
		{"always_off", "always_off", "", "production"},
		{"ratio_half", "traceidratio", "0.5", "production"},
		{"ratio_invalid_defaults_to_one", "traceidratio", "not-a-float", "production"},
		{"ratio_out_of_range_clamped", "traceidratio", "5", "production"},
		{"unsupported_defaults_to_one", "something_else", "", "production"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER", tc.env)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tc.arg)
			sampler := parseSamplerFromEnv(tc.appEnv)
			if sampler == nil {
				t.Fatalf("expected a non-nil sampler for %s", tc.name)
			}
		})
	}
}
