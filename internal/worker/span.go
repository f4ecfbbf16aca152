package worker

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/runr/internal/pipeline"
)

func otelSpanAttrs(task pipeline.Task) []trace.SpanStartOption {
	kind := "command_line"
	if task.Kind == pipeline.PullImage {
		kind = "pull_image"
	}
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("runr.task.kind", kind),
			attribute.String("runr.task.name", task.String()),
			attribute.String("runr.task.image", task.Image),
		),
	}
}
