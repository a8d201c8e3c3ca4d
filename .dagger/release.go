package main

import (
	"context"
	"fmt"
	"path"

	"dagger/voicenotes/internal/dagger"
)

// bucket holds the credentials for the S3-compatible artifacts bucket.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyId     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// upload syncs artifacts into the bucket under prefix.
func (v *Voicenotes) upload(ctx context.Context, b bucket, artifacts *dagger.Directory, prefix string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyId).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{
			"aws", "s3", "sync", ".",
			"s3://" + path.Join(name, prefix),
			"--endpoint-url", endpoint,
		}).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to upload artifacts: %w", err)
	}
	return nil
}

// ReleaseLatest builds release binaries and uploads them under both the
// version and "latest" prefixes.
func (v *Voicenotes) ReleaseLatest(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := bucket{endpoint: endpoint, name: bucketName, accessKeyId: accessKeyId, secretAccessKey: secretAccessKey}
	artifacts := v.BuildRelease(ctx, version, commit)

	for _, prefix := range []string{version, "latest"} {
		if err := v.upload(ctx, b, artifacts, prefix); err != nil {
			return artifacts, fmt.Errorf("could not upload %s release artifacts: %w", prefix, err)
		}
	}
	return artifacts, nil
}

// Nightly builds and uploads nightly artifacts
func (v *Voicenotes) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := bucket{endpoint: endpoint, name: bucketName, accessKeyId: accessKeyId, secretAccessKey: secretAccessKey}
	artifacts := v.BuildRelease(ctx, "nightly", commit)
	return artifacts, v.upload(ctx, b, artifacts, "nightly")
}
