// Package wrapper loads and merges per-directory wrapper configuration.
//
// Each directory in a configuration tree may carry a .tf_wrapper YAML file.
// The effective configuration for a directory is the merge of every file on
// the path from the tree root down to the directory, nearest directory wins.
package wrapper

import (
	"fmt"
	"path/filepath"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// ConfigFileName is the wrapper config file looked up in every directory.
const ConfigFileName = ".tf_wrapper"

// EnvVarSource identifies where an environment variable's value comes from.
type EnvVarSource string

const (
	SourceSSM            EnvVarSource = "ssm"
	SourceSecretsManager EnvVarSource = "secretsmanager"
	SourceText           EnvVarSource = "text"
)

// EnvVar declares one environment variable.
type EnvVar struct {
	Source EnvVarSource `yaml:"source"`
	// Path is the SSM parameter name or Secrets Manager secret id.
	Path string `yaml:"path,omitempty"`
	// Value is the literal value for the text source.
	Value string `yaml:"value,omitempty"`
}

func (v EnvVar) validate(name string) error {
	switch v.Source {
	case SourceSSM, SourceSecretsManager:
		if v.Path == "" {
			return fmt.Errorf("envvar %s: source %s requires a path", name, v.Source)
		}
	case SourceText:
	default:
		return fmt.Errorf("envvar %s: invalid source %q", name, v.Source)
	}
	return nil
}

// File is the raw shape of one .tf_wrapper file. Pointer fields distinguish
// "absent" from an explicit false so the merge can honor nearest-wins.
type File struct {
	ConfigureBackend *bool             `yaml:"configure_backend,omitempty"`
	PipelineCheck    *bool             `yaml:"pipeline_check,omitempty"`
	PlanCheck        *bool             `yaml:"plan_check,omitempty"`
	DependsOn        []string          `yaml:"depends_on,omitempty"`
	EnvVars          map[string]EnvVar `yaml:"envvars,omitempty"`
}

func (f *File) validate(path string) error {
	for name, v := range f.EnvVars {
		if err := v.validate(name); err != nil {
			return errors.ParseError(path, err)
		}
	}
	return nil
}

// Config is the resolved configuration for one directory.
type Config struct {
	// ConfigureBackend controls whether init is allowed to configure the
	// remote state backend. Default true.
	ConfigureBackend bool

	// PipelineCheck marks the directory as subject to pipeline policy:
	// it must appear in a pipeline manifest and must declare a remote
	// state backend. Default true.
	PipelineCheck bool

	// PlanCheck opts the directory in to change-impact selection.
	// Default true.
	PlanCheck bool

	// DependsOn lists declared dependency directories as canonical absolute
	// paths. Nil when no file on the chain declared dependencies; an empty
	// non-nil slice is an explicit "no dependencies" declaration.
	DependsOn []string

	// EnvVars is the key-wise merge of declared environment variables.
	EnvVars map[string]EnvVar
}

// Declared reports whether any file on the chain declared dependencies.
func (c *Config) Declared() bool {
	return c.DependsOn != nil
}

// defaultConfig is the configuration of a directory with no wrapper files.
func defaultConfig() *Config {
	return &Config{
		ConfigureBackend: true,
		PipelineCheck:    true,
		PlanCheck:        true,
		EnvVars:          make(map[string]EnvVar),
	}
}

// merge folds the discovered files into a resolved Config. Files must be
// ordered outermost first; each file's dir resolves its relative depends_on
// entries. A nearer depends_on declaration replaces an outer one entirely;
// envvars merge key-wise with nearer keys winning.
func merge(files []*File, dirs []string) *Config {
	cfg := defaultConfig()
	for i, f := range files {
		if f.ConfigureBackend != nil {
			cfg.ConfigureBackend = *f.ConfigureBackend
		}
		if f.PipelineCheck != nil {
			cfg.PipelineCheck = *f.PipelineCheck
		}
		if f.PlanCheck != nil {
			cfg.PlanCheck = *f.PlanCheck
		}
		if f.DependsOn != nil {
			resolved := make([]string, 0, len(f.DependsOn))
			for _, dep := range f.DependsOn {
				if !filepath.IsAbs(dep) {
					dep = filepath.Join(dirs[i], dep)
				}
				resolved = append(resolved, filepath.Clean(dep))
			}
			cfg.DependsOn = resolved
		}
		for k, v := range f.EnvVars {
			cfg.EnvVars[k] = v
		}
	}
	return cfg
}
