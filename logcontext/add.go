/*
Copyright 2025, 2026 Dima Krasner

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

package logcontext

import "context"

type keyType struct{}

var key keyType

// Add returns a copy of a [context.Context] with additional log fields.
//
// Arguments should be in the same format as [slog.Logger.Log]. Fields added to a parent context are
// kept and never modified.
//
// Use [NewHandler] to obtain a [slog.Handler] that logs these fields.
func Add(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(key).([]any)

	fields := make([]any, 0, len(prev)+len(args))
	fields = append(fields, prev...)
	fields = append(fields, args...)

	return context.WithValue(ctx, key, fields)
}

// Fields returns the log fields of a [context.Context].
func Fields(ctx context.Context) []any {
	fields, _ := ctx.Value(key).([]any)
	return fields
}
