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
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"
)

// ModelCatalog is a lazily loaded, refreshable view of the models a client can use.
type ModelCatalog struct {
	client Client
	retry  RetryConfig

	group singleflight.Group

	mu     sync.RWMutex
	models []string
	loaded bool
}

// NewModelCatalog creates a catalog for the client. Nothing is fetched until
// the catalog is first used.
func NewModelCatalog(client Client) *ModelCatalog {
	return &ModelCatalog{
		client: client,
		retry:  DefaultRetryConfig,
	}
}

// SetRetryConfig changes how model listing is retried.
func (c *ModelCatalog) SetRetryConfig(config RetryConfig) {
	c.retry = config
}

// Client returns the underlying client.
func (c *ModelCatalog) Client() Client {
	return c.client
}

// Models returns the cached model list, fetching it on first use.
func (c *ModelCatalog) Models(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	if c.loaded {
		models := slices.Clone(c.models)
		c.mu.RUnlock()
		return models, nil
	}
	c.mu.RUnlock()
	return c.Refresh(ctx)
}

// Refresh reloads the model list. Concurrent refreshes share one request.
func (c *ModelCatalog) Refresh(ctx context.Context) ([]string, error) {
	v, err, _ := c.group.Do("models", func() (any, error) {
		models, err := Retry(ctx, c.retry, DefaultIsRetryableError, c.client.ListModels)
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
		slices.Sort(models)

		c.mu.Lock()
		c.models = models
		c.loaded = true
		c.mu.Unlock()

		klog.FromContext(ctx).V(1).Info("Refreshed model list", "count", len(models))
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]string)), nil
}

// Retrieve checks that model is available to the client.
func (c *ModelCatalog) Retrieve(ctx context.Context, model string) error {
	return c.client.RetrieveModel(ctx, model)
}
