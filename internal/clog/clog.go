// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clog provides context-scoped logging on top of glog, matching the
// calling convention of clog.Infof/Warningf/Errorf used throughout the
// teacher codebase this package was adapted from.
package clog

import (
	"context"
	"fmt"

	log "github.com/golang/glog"
)

type ctxKey struct{}

// tags is the set of key/value pairs attached to a context via WithTags,
// prepended to every log line emitted through that context.
type tags []string

// WithTags returns a context that prefixes every clog call with the given
// key/value pairs (e.g. WithTags(ctx, "task_id", id)).
func WithTags(ctx context.Context, kv ...string) context.Context {
	existing, _ := ctx.Value(ctxKey{}).(tags)
	merged := make(tags, 0, len(existing)+len(kv))
	merged = append(merged, existing...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

func prefix(ctx context.Context) string {
	kv, _ := ctx.Value(ctxKey{}).(tags)
	if len(kv) == 0 {
		return ""
	}
	s := "["
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			s += " "
		}
		s += kv[i] + "=" + kv[i+1]
	}
	return s + "] "
}

// Infof logs at info level, prefixed with any tags attached to ctx.
func Infof(ctx context.Context, format string, args ...any) {
	log.InfoDepth(1, prefix(ctx)+fmt.Sprintf(format, args...))
}

// Warningf logs a warning, prefixed with any tags attached to ctx.
func Warningf(ctx context.Context, format string, args ...any) {
	log.WarningDepth(1, prefix(ctx)+fmt.Sprintf(format, args...))
}

// Errorf logs an error, prefixed with any tags attached to ctx.
func Errorf(ctx context.Context, format string, args ...any) {
	log.ErrorDepth(1, prefix(ctx)+fmt.Sprintf(format, args...))
}
