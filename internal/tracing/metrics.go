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

package tracing

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/chatflow/pkg/workflow"
)

// MetricsCollector records run and node metrics. It implements
// workflow.Metrics.
type MetricsCollector struct {
	meter metric.Meter

	runsTotal  metric.Int64Counter
	nodesTotal metric.Int64Counter

	runDuration  metric.Float64Histogram
	nodeDuration metric.Float64Histogram

	activeRuns atomic.Int64
}

var _ workflow.Metrics = (*MetricsCollector)(nil)

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter(instrumentationName)
	mc := &MetricsCollector{meter: meter}

	var err error

	// The Prometheus exporter derives the _total and _seconds suffixes
	// from the instrument kind and unit.
	mc.runsTotal, err = meter.Int64Counter(
		"chatflow_runs",
		metric.WithDescription("Total number of workflow runs by final state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.nodesTotal, err = meter.Int64Counter(
		"chatflow_node_executions",
		metric.WithDescription("Total number of node executions by type and final status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"chatflow_run_duration",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.nodeDuration, err = meter.Float64Histogram(
		"chatflow_node_duration",
		metric.WithDescription("Node execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"chatflow_active_runs",
		metric.WithDescription("Number of runs currently in flight"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(mc.activeRuns.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordRunStart marks a run as in flight.
func (mc *MetricsCollector) RecordRunStart() {
	mc.activeRuns.Add(1)
}

// RecordRunEnd marks a run as no longer in flight.
func (mc *MetricsCollector) RecordRunEnd() {
	mc.activeRuns.Add(-1)
}

// ActiveRuns returns the number of runs in flight.
func (mc *MetricsCollector) ActiveRuns() int64 {
	return mc.activeRuns.Load()
}

// RecordRun records the completion of a workflow run.
func (mc *MetricsCollector) RecordRun(ctx context.Context, state workflow.State, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", string(state)))
	mc.runsTotal.Add(ctx, 1, attrs)
	mc.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordNode records the completion of a node execution.
func (mc *MetricsCollector) RecordNode(ctx context.Context, nodeType workflow.NodeType, status workflow.NodeStatus, duration time.Duration) {
	mc.nodesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_type", string(nodeType)),
		attribute.String("status", string(status)),
	))
	mc.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("node_type", string(nodeType)),
	))
}
