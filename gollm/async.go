// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gollm

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// Future is the pending result of a single call started with Async.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async starts op in its own goroutine and returns a Future for its result.
func Async[T any](ctx context.Context, op func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("panic in async call: %v", r)
			}
		}()
		f.value, f.err = op(ctx)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncClient resolves chat and completion calls through Futures. Failures are
// logged and handed back unchanged.
type AsyncClient struct {
	Client Client
}

// Chat starts a chat call.
func (a *AsyncClient) Chat(ctx context.Context, req *ChatRequest) *Future[*ChatResponse] {
	return Async(ctx, func(ctx context.Context) (*ChatResponse, error) {
		resp, err := a.Client.ChatCompletion(ctx, req)
		if err != nil {
			klog.FromContext(ctx).Error(err, "Call to chat model returned error", "model", req.Model)
			return nil, err
		}
		return resp, nil
	})
}

// Complete starts a single-shot completion call.
func (a *AsyncClient) Complete(ctx context.Context, req *CompletionRequest) *Future[CompletionResponse] {
	return Async(ctx, func(ctx context.Context) (CompletionResponse, error) {
		resp, err := a.Client.GenerateCompletion(ctx, req)
		if err != nil {
			klog.FromContext(ctx).Error(err, "Call to completion model returned error", "model", req.Model)
			return nil, err
		}
		return resp, nil
	})
}
