// Copyright 2025 Google LLC
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

// Package mocks holds go:generate directives for gomock.
package mocks

// Generate gomock types for external interfaces we depend on.
// NOTE: run `go generate ./...` from repo root to (re)create mocks.
// Requires: go install go.uber.org/mock/mockgen@latest

// gollm interfaces
//   - Client
// tools interface
//   - Tool
// memory interface
//   - Store

//go:generate mockgen -destination=gollm_mock.go -package=mocks github.com/kbserverapp/kbai/gollm Client
//go:generate mockgen -destination=tools_mock.go -package=mocks github.com/kbserverapp/kbai/pkg/tools Tool
//go:generate mockgen -destination=memory_mock.go -package=mocks github.com/kbserverapp/kbai/pkg/memory Store
