package layers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/drblury/actuator/internal/runtime/logging"
)

// WatchDebounce is how long Watch waits after the last file event before it
// reloads.
var WatchDebounce = 250 * time.Millisecond

// ObjectGetter is the part of the S3 client the application layer uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source points the application layer at one YAML object.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Key    string
}

// ApplicationLayer is the flattened content of the application YAML
// documents. Files are merged in order and later files win; the S3 object,
// when set, is merged last.
type ApplicationLayer struct {
	files []string
	s3    *S3Source

	mu      sync.RWMutex
	entries *ordered
}

// NewApplicationLayer builds the layer without reading anything. Call Reload
// to load the sources.
func NewApplicationLayer(files []string, s3src *S3Source) *ApplicationLayer {
	return &ApplicationLayer{
		files:   append([]string(nil), files...),
		s3:      s3src,
		entries: newOrdered(),
	}
}

func (a *ApplicationLayer) Name() string { return "application" }
func (a *ApplicationLayer) Kind() Kind   { return KindApplication }

func (a *ApplicationLayer) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entries.get(key)
}

func (a *ApplicationLayer) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entries.names()
}

// Files returns the watched file paths.
func (a *ApplicationLayer) Files() []string { return append([]string(nil), a.files...) }

// Reload re-reads every source. The previous content is kept when any
// source fails.
func (a *ApplicationLayer) Reload(ctx context.Context) error {
	next := newOrdered()
	for _, path := range a.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("application layer: read %s: %w", path, err)
		}
		if err := flattenYAML(data, next); err != nil {
			return fmt.Errorf("application layer: %s: %w", path, err)
		}
	}
	if a.s3 != nil {
		data, err := a.fetch(ctx)
		if err != nil {
			return err
		}
		if err := flattenYAML(data, next); err != nil {
			return fmt.Errorf("application layer: s3://%s/%s: %w", a.s3.Bucket, a.s3.Key, err)
		}
	}

	a.mu.Lock()
	a.entries = next
	a.mu.Unlock()
	return nil
}

func (a *ApplicationLayer) fetch(ctx context.Context) ([]byte, error) {
	bucket, key := a.s3.Bucket, a.s3.Key
	out, err := a.s3.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("application layer: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("application layer: read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Watch calls onChange after a watched file is written, created or renamed.
// Directories are watched rather than files so editors that replace the
// file keep being observed. Watch blocks until ctx is done.
func (a *ApplicationLayer) Watch(ctx context.Context, logger logging.ServiceLogger, onChange func(context.Context)) error {
	if len(a.files) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NopServiceLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("application layer: watch: %w", err)
	}
	defer watcher.Close()

	wanted := map[string]bool{}
	dirs := map[string]bool{}
	for _, f := range a.files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("application layer: watch %s: %w", f, err)
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("application layer: watch %s: %w", dir, err)
		}
	}
	logger.Debug("watching application files", logging.LogFields{"files": a.files})

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !wanted[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(WatchDebounce)
			} else {
				timer.Reset(WatchDebounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("application watch failed", err, nil)
		case <-fire:
			fire = nil
			logger.Info("application files changed", logging.LogFields{"files": a.files})
			onChange(ctx)
		}
	}
}

// flattenYAML merges every document of data into out. Mapping keys are
// joined with dots and sequence items get an [i] suffix. Empty documents
// contribute nothing.
func flattenYAML(data []byte, out *ordered) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(doc.Content) == 0 {
			continue
		}
		if err := flattenNode("", doc.Content[0], out); err != nil {
			return err
		}
	}
}

func flattenNode(prefix string, n *yaml.Node, out *ordered) error {
	switch n.Kind {
	case yaml.AliasNode:
		return flattenNode(prefix, n.Alias, out)
	case yaml.MappingNode:
		if len(n.Content) == 0 && prefix != "" {
			out.set(prefix, "")
			return nil
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				if err := flattenNode(prefix, v, out); err != nil {
					return err
				}
				continue
			}
			if err := flattenNode(join(prefix, k.Value), v, out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		if len(n.Content) == 0 && prefix != "" {
			out.set(prefix, "")
			return nil
		}
		for i, item := range n.Content {
			if err := flattenNode(prefix+"["+strconv.Itoa(i)+"]", item, out); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("top-level scalar %q is not a mapping", n.Value)
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		out.set(prefix, v)
	}
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
