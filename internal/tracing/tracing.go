// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tracing provides a thin NewSpan/SetAttr/End wrapper over
// go.opentelemetry.io/otel/trace, matching the call shape the teacher's
// sync/semaphore package used against its own internal trace package.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an otel span so callers don't need to import the otel/trace
// package directly for the handful of calls HPS needs.
type Span struct {
	span trace.Span
}

// Start begins a new span named name using tracer. If tracer is nil, Start
// returns a no-op span and the context is returned unchanged.
func Start(ctx context.Context, tracer trace.Tracer, name string) (context.Context, *Span) {
	if tracer == nil {
		return ctx, &Span{}
	}
	ctx, span := tracer.Start(ctx, name)
	return ctx, &Span{span: span}
}

// SetAttr attaches an integer attribute to the span.
func (s *Span) SetAttr(key string, value int) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.Int(key, value))
}

// SetAttrString attaches a string attribute to the span.
func (s *Span) SetAttrString(key, value string) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.String(key, value))
}

// End closes the span, recording err (if any) as the span status.
func (s *Span) End(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
