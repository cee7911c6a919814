package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// RegionGetter is the part of the instance metadata client ResolveRegion needs.
type RegionGetter interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// ResolveRegion returns the configured region, or asks the EC2 instance
// metadata service when none is set. It runs once at startup; the result is
// passed to the store constructor.
func ResolveRegion(ctx context.Context, d DestinationConfig, md RegionGetter) (string, error) {
	if d.Region != "" {
		return d.Region, nil
	}
	if d.Endpoint != "" {
		// S3-compatible endpoints rarely care about the region.
		return "us-east-1", nil
	}
	if md == nil {
		md = imds.New(imds.Options{})
	}

	out, err := md.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", &ConfigurationError{
			Field: "destination.region",
			Err:   fmt.Errorf("not set and instance metadata unavailable: %w", err),
		}
	}
	if out.Region == "" {
		return "", &ConfigurationError{Field: "destination.region", Err: errors.New("instance metadata returned an empty region")}
	}
	return out.Region, nil
}
