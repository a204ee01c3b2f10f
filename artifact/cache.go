package artifact

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthguard/ml"
)

// Cache keeps decoded artifacts for a long-running process. Each artifact
// is decoded at most once and shared read-only by concurrent callers until
// Watch evicts it.
type Cache struct {
	loader *Loader
	logger *zap.Logger
	items  *lru.Cache[string, any]
	locks  map[string]*sync.Mutex
}

// NewCache wraps loader. size is raised to the number of artifacts so a
// full bundle never evicts part of itself.
func NewCache(loader *Loader, size int, logger *zap.Logger) (*Cache, error) {
	names := Names()
	if size < len(names) {
		size = len(names)
	}
	items, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := make(map[string]*sync.Mutex, len(names))
	for _, name := range names {
		locks[name] = &sync.Mutex{}
	}
	return &Cache{loader: loader, logger: logger, items: items, locks: locks}, nil
}

func (c *Cache) get(ctx context.Context, name string) (any, error) {
	if v, ok := c.items.Get(name); ok {
		return v, nil
	}
	mu, ok := c.locks[name]
	if !ok {
		return nil, loadError(name, fmt.Errorf("unknown artifact %q", name))
	}
	mu.Lock()
	defer mu.Unlock()
	if v, ok := c.items.Get(name); ok {
		return v, nil
	}
	v, err := c.loader.decode(ctx, name)
	if err != nil {
		return nil, err
	}
	c.items.Add(name, v)
	c.logger.Info("artifact loaded", zap.String("artifact", name))
	return v, nil
}

// Load returns a bundle assembled from cached artifacts.
func (c *Cache) Load(ctx context.Context) (*Bundle, error) {
	v, err := c.get(ctx, Encoders)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Encoders: v.(map[string]*ml.LabelEncoder), Models: make(map[string]ml.Classifier, len(Targets))}
	for _, target := range Targets {
		v, err := c.get(ctx, ModelName(target))
		if err != nil {
			return nil, err
		}
		b.Models[target] = v.(ml.Classifier)
	}
	return b, nil
}

// Preload decodes every artifact concurrently.
func (c *Cache) Preload(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, name := range Names() {
		g.Go(func() error {
			_, err := c.get(gCtx, name)
			return err
		})
	}
	return g.Wait()
}

// Loaded reports whether name is currently cached.
func (c *Cache) Loaded(name string) bool {
	return c.items.Contains(name)
}

// Invalidate drops name so the next Load decodes it again.
func (c *Cache) Invalidate(name string) {
	if c.items.Remove(name) {
		c.logger.Info("artifact invalidated", zap.String("artifact", name))
	}
}

// Watch evicts artifacts whose files change under dir until ctx is done.
func (c *Cache) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if name, ok := artifactName(event.Name); ok {
					c.Invalidate(name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("artifact watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func artifactName(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(base, fileSuffix)
	for _, n := range Names() {
		if n == name {
			return name, true
		}
	}
	return "", false
}
