package wrapper

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// Resolver resolves the effective wrapper configuration for directories
// under one configuration tree root. Resolution results are cached per
// directory; a Resolver is safe for concurrent use.
type Resolver struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	cache map[string]*Config
	files map[string]*File
}

// NewResolver creates a resolver rooted at the configuration tree root.
func NewResolver(root string) (*Resolver, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return &Resolver{
		root:  absRoot,
		log:   logging.New("wrapper"),
		cache: make(map[string]*Config),
		files: make(map[string]*File),
	}, nil
}

// Root returns the configuration tree root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the merged configuration for dir by folding every
// .tf_wrapper file on the chain from the root down to dir. Directories
// outside the root resolve from their own file only.
func (r *Resolver) Resolve(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[absDir]; ok {
		return cfg, nil
	}

	chain := r.chain(absDir)
	files := make([]*File, 0, len(chain))
	dirs := make([]string, 0, len(chain))
	for _, d := range chain {
		f, err := r.loadLocked(d)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		files = append(files, f)
		dirs = append(dirs, d)
	}

	cfg := merge(files, dirs)
	r.cache[absDir] = cfg
	return cfg, nil
}

// DependsOn returns the declared dependency paths for dir along with
// whether any configuration on the chain declared dependencies at all.
func (r *Resolver) DependsOn(dir string) ([]string, bool, error) {
	cfg, err := r.Resolve(dir)
	if err != nil {
		return nil, false, err
	}
	return cfg.DependsOn, cfg.Declared(), nil
}

// chain returns the directories from the root down to dir, outermost first.
func (r *Resolver) chain(dir string) []string {
	rel, err := filepath.Rel(r.root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{dir}
	}
	chain := []string{r.root}
	if rel == "." {
		return chain
	}
	current := r.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		chain = append(chain, current)
	}
	return chain
}

// loadLocked reads one directory's wrapper file, caching parsed files so
// shared ancestors parse once per run. Returns nil when the file is absent.
func (r *Resolver) loadLocked(dir string) (*File, error) {
	if f, ok := r.files[dir]; ok {
		return f, nil
	}

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.files[dir] = nil
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read %s", path), err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.ParseError(path, err)
	}
	if err := f.validate(path); err != nil {
		return nil, err
	}

	r.log.Debug("loaded wrapper config", "path", path)
	r.files[dir] = &f
	return &f, nil
}
