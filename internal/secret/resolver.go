// Package secret resolves secret references from AWS SSM Parameter Store or
// the environment.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	ssmPrefix = "ssm:"
	envPrefix = "env:"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a SecureString parameter with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables.
type EnvResolver struct{}

// GetSecret returns the value of the named variable.
func (EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	val := os.Getenv(name)
	if val == "" {
		return "", fmt.Errorf("environment variable %q is not set", name)
	}
	return val, nil
}

// ErrNoSSM is returned for ssm: references when no SSM resolver is configured.
var ErrNoSSM = errors.New("secret: ssm reference without an ssm resolver")

// Resolve turns a reference into its value. "ssm:/path" reads Parameter Store
// through ssmResolver, "env:NAME" reads the environment, an empty reference
// yields an empty value, and anything else is returned as is.
func Resolve(ctx context.Context, ref string, ssmResolver Resolver) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, ssmPrefix):
		if ssmResolver == nil {
			return "", ErrNoSSM
		}
		return ssmResolver.GetSecret(ctx, strings.TrimPrefix(ref, ssmPrefix))
	case strings.HasPrefix(ref, envPrefix):
		return EnvResolver{}.GetSecret(ctx, strings.TrimPrefix(ref, envPrefix))
	default:
		return ref, nil
	}
}

// IsSSMReference reports whether ref needs an SSM resolver.
func IsSSMReference(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), ssmPrefix)
}
