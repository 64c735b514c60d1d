// ABOUTME: API catalog discovered through listApis.
// ABOUTME: Serves both the granted permission set and per-command parameter metadata.

package api

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/2389/consoleview/internal/engine"
)

// APIInfo describes one command the caller may invoke
type APIInfo struct {
	Name        string
	Description string
	IsAsync     bool
	Params      []engine.ParamSpec
}

// Catalog caches the listApis result. The caller's permissions are exactly the
// commands listApis reports, optionally narrowed by an allow-list.
type Catalog struct {
	client *Client
	allow  engine.PermissionSet

	group singleflight.Group

	mu   sync.RWMutex
	apis map[string]APIInfo
}

// NewCatalog creates a catalog. An empty allow-list permits every listed command.
func NewCatalog(client *Client, allow []string) *Catalog {
	c := &Catalog{client: client}
	if len(allow) > 0 {
		c.allow = engine.NewPermissionSet(allow...)
	}
	return c
}

// Load fetches the catalog once; concurrent callers share the request.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.apis != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, shared := c.group.Do("listApis", func() (any, error) {
		c.mu.RLock()
		loaded := c.apis != nil
		c.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		apis, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.apis = apis
		c.mu.Unlock()
		zap.S().Infof("loaded %d management api commands", len(apis))
		return nil, nil
	})
	if shared {
		zap.S().Debug("shared in-flight listApis request")
	}
	return err
}

// Invalidate drops the cached catalog so the next call refetches it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.apis = nil
	c.mu.Unlock()
}

// Granted implements engine.PermissionSource.
func (c *Catalog) Granted(ctx context.Context) (engine.PermissionSet, error) {
	if err := c.Load(ctx); err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	granted := make(engine.PermissionSet, len(c.apis))
	for name := range c.apis {
		granted[name] = struct{}{}
	}
	return granted, nil
}

// Params implements engine.ParamSource. Unknown commands report false.
func (c *Catalog) Params(ctx context.Context, api string) ([]engine.ParamSpec, bool) {
	info, ok := c.Lookup(ctx, api)
	if !ok {
		return nil, false
	}
	return info.Params, true
}

// Lookup returns metadata for one command.
func (c *Catalog) Lookup(ctx context.Context, api string) (APIInfo, bool) {
	if err := c.Load(ctx); err != nil {
		zap.S().Warnf("api catalog unavailable: %v", err)
		return APIInfo{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.apis[api]
	return info, ok
}

func (c *Catalog) fetch(ctx context.Context) (map[string]APIInfo, error) {
	records, _, err := c.client.List(ctx, "listApis", nil)
	if err != nil {
		return nil, err
	}

	apis := make(map[string]APIInfo, len(records))
	for _, r := range records {
		name, _ := r.String("name")
		if name == "" {
			continue
		}
		if c.allow != nil && !c.allow.Has(name) {
			continue
		}
		info := APIInfo{Name: name}
		info.Description, _ = r.String("description")
		info.IsAsync, _ = r["isasync"].(bool)

		params, _ := r["params"].([]any)
		for _, p := range params {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			spec := engine.ParamSpec{}
			spec.Name, _ = pm["name"].(string)
			spec.Required, _ = pm["required"].(bool)
			spec.Type, _ = pm["type"].(string)
			spec.Description, _ = pm["description"].(string)
			if spec.Name != "" {
				info.Params = append(info.Params, spec)
			}
		}
		apis[name] = info
	}
	return apis, nil
}
