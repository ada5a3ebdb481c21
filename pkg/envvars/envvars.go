// Package envvars materializes declared environment variables from their
// sources: SSM parameters, Secrets Manager secrets, or literal text.
package envvars

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/errors"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// SSMClient is the slice of the SSM API the resolver needs.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretsClient is the slice of the Secrets Manager API the resolver needs.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver materializes environment variables, caching each remote lookup
// for the lifetime of a run. Many directories typically share the same
// declarations, so resolution happens once per distinct source/path pair.
// AWS clients are created lazily on the first remote lookup, so trees whose
// variables are all literal never require AWS credentials.
type Resolver struct {
	log *slog.Logger

	mu      sync.Mutex
	ssm     SSMClient
	secrets SecretsClient
	awsCfg  *aws.Config
	cache   map[string]string
}

// NewResolver creates a resolver with lazily initialized AWS clients.
func NewResolver() *Resolver {
	return &Resolver{
		log:   logging.New("envvars"),
		cache: make(map[string]string),
	}
}

// WithClients overrides the AWS clients. Used by tests and callers that
// manage their own client configuration.
func (r *Resolver) WithClients(ssmClient SSMClient, secretsClient SecretsClient) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ssm = ssmClient
	r.secrets = secretsClient
	return r
}

// Resolve materializes every declared variable. Variables resolving to an
// empty value are dropped rather than exported empty.
func (r *Resolver) Resolve(ctx context.Context, vars map[string]wrapper.EnvVar) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for name, v := range vars {
		value, err := r.resolveOne(ctx, v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEnvVarResolve,
				fmt.Sprintf("failed to resolve environment variable %s", name), err)
		}
		if value == "" {
			r.log.Debug("dropping empty environment variable", "name", name, "source", v.Source)
			continue
		}
		out[name] = value
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, v wrapper.EnvVar) (string, error) {
	switch v.Source {
	case wrapper.SourceText:
		return v.Value, nil
	case wrapper.SourceSSM:
		return r.cached(ctx, "ssm:"+v.Path, r.fetchParameter, v.Path)
	case wrapper.SourceSecretsManager:
		return r.cached(ctx, "secretsmanager:"+v.Path, r.fetchSecret, v.Path)
	default:
		return "", fmt.Errorf("unknown source %q", v.Source)
	}
}

// cached runs fetch outside the lock; two concurrent first lookups for the
// same key may both fetch, which is harmless.
func (r *Resolver) cached(ctx context.Context, key string, fetch func(context.Context, string) (string, error), path string) (string, error) {
	r.mu.Lock()
	if value, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return value, nil
	}
	r.mu.Unlock()

	value, err := fetch(ctx, path)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	return value, nil
}

func (r *Resolver) fetchParameter(ctx context.Context, path string) (string, error) {
	client, err := r.ssmClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read SSM parameter %s: %w", path, err)
	}
	if out.Parameter == nil {
		return "", nil
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (r *Resolver) fetchSecret(ctx context.Context, path string) (string, error) {
	client, err := r.secretsClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	return aws.ToString(out.SecretString), nil
}

func (r *Resolver) ssmClient(ctx context.Context) (SSMClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ssm == nil {
		cfg, err := r.awsConfigLocked(ctx)
		if err != nil {
			return nil, err
		}
		r.ssm = ssm.NewFromConfig(cfg)
	}
	return r.ssm, nil
}

func (r *Resolver) secretsClient(ctx context.Context) (SecretsClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secrets == nil {
		cfg, err := r.awsConfigLocked(ctx)
		if err != nil {
			return nil, err
		}
		r.secrets = secretsmanager.NewFromConfig(cfg)
	}
	return r.secrets, nil
}

func (r *Resolver) awsConfigLocked(ctx context.Context) (aws.Config, error) {
	if r.awsCfg == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		r.awsCfg = &cfg
	}
	return *r.awsCfg, nil
}
