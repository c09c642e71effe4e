package config

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/pkg/errors"
)

// SecretResolver looks up a secret value by reference.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecrets resolves references against AWS Secrets Manager using the
// default credential chain.
type AWSSecrets struct {
	client secretsManagerAPI
}

func NewAWSSecrets(ctx context.Context) (*AWSSecrets, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &AWSSecrets{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// Resolve returns the secret string. A JSON object secret is read through its
// "client_secret" field.
func (s *AWSSecrets) Resolve(ctx context.Context, ref string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref)})
	if err != nil {
		return "", errors.Wrapf(err, "get secret %s", ref)
	}
	if out.SecretString == nil {
		return "", errors.Errorf("secret %s has no string value", ref)
	}
	value := *out.SecretString

	var fields map[string]string
	if json.Unmarshal([]byte(value), &fields) == nil {
		if v, ok := fields["client_secret"]; ok {
			return v, nil
		}
		return "", errors.Errorf("secret %s has no client_secret field", ref)
	}
	return value, nil
}

// ResolveClientSecret fills in the client secret from its reference when it
// was not given directly.
func (c *Config) ResolveClientSecret(ctx context.Context, resolver SecretResolver) error {
	if c.APS.ClientSecret != "" || c.APS.ClientSecretRef == "" {
		return nil
	}
	secret, err := resolver.Resolve(ctx, c.APS.ClientSecretRef)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.Errorf("secret %s is empty", c.APS.ClientSecretRef)
	}
	c.APS.ClientSecret = secret
	return nil
}
