// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package tracing wires OpenTelemetry into chatflow.

Setup installs a tracer provider and a meter provider. Spans go to the
configured exporter (stdout, otlp-http or otlp-grpc); metrics are read by
the OpenTelemetry Prometheus exporter into a private registry that the
server exposes on /metrics.

	provider, err := tracing.Setup(ctx, tracing.Config{
	    Enabled:     true,
	    Exporter:    tracing.ExporterOTLPGRPC,
	    Endpoint:    "localhost:4317",
	    ServiceName: "chatflow",
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(context.Background())

	executor := workflow.NewExecutor(model).
	    WithTracer(provider.Tracer()).
	    WithMetrics(provider.Metrics())

The executor creates a workflow.run span per run and a workflow.node span
per node execution. MetricsCollector records:

  - chatflow_runs_total{state}
  - chatflow_node_executions_total{node_type,status}
  - chatflow_node_duration_seconds{node_type}
  - chatflow_active_runs

HTTPMiddleware extracts W3C trace context from incoming requests so runs
started over HTTP join the caller's trace.
*/
package tracing
