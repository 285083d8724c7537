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

import "io"

// Exporter names accepted in Config.Exporter.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterNone     = "none"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are exported. Metrics are always
	// collected.
	Enabled bool

	// Exporter is one of stdout, otlp-http, otlp-grpc or none.
	Exporter string

	// Endpoint is the collector address for otlp exporters, e.g.
	// "localhost:4317". Empty uses the OTEL_EXPORTER_OTLP_* defaults.
	Endpoint string

	// Insecure disables TLS to the collector (for development only).
	Insecure bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of root spans sampled, from 0 to 1.
	SampleRate float64

	// Writer receives stdout exporter output. Default: os.Stdout.
	Writer io.Writer
}

func (c Config) withDefaults() Config {
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.ServiceName == "" {
		c.ServiceName = "chatflow"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	return c
}
