/*
Copyright The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log threads a logr.Logger through context.Context, the same
// convention sigs.k8s.io/controller-runtime/pkg/log uses, without pulling in
// the manager/reconciler machinery this engine has no host for.
package log

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type contextKey struct{}

// IntoContext returns a copy of ctx carrying l.
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logr.Logger stashed by IntoContext, or the
// discard logger if none was set.
func FromContext(ctx context.Context) logr.Logger {
	if l, ok := ctx.Value(contextKey{}).(logr.Logger); ok {
		return l
	}
	return logr.Discard()
}

// NewZap builds a logr.Logger backed by zap through the zapr bridge.
func NewZap(development bool) (logr.Logger, error) {
	var zapLog *zap.Logger
	var err error
	if development {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLog), nil
}
