package proxy

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

// isECRHost reports whether host looks like an AWS ECR registry hostname,
// "<account>.dkr.ecr.<region>.amazonaws.com".
func isECRHost(host string) bool {
	parts := strings.Split(hostOnly(host), ".")
	return len(parts) >= 6 && parts[1] == "dkr" && parts[2] == "ecr" && strings.HasSuffix(host, "amazonaws.com")
}

// ecrRegion extracts the region from an ECR hostname, its fourth
// dot-separated segment.
func ecrRegion(host string) (string, error) {
	parts := strings.Split(hostOnly(host), ".")
	if len(parts) < 4 {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "cannot derive AWS region from ECR host %q", host)
	}
	return parts[3], nil
}

func hostOnly(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// ecrBasicPassword obtains a short-lived authorization token from the AWS
// ECR GetAuthorizationToken API via the ambient credential chain and returns
// the password half of the decoded "AWS:<password>" basic-auth string.
func ecrBasicPassword(ctx context.Context, host string) (string, error) {
	region, err := ecrRegion(host)
	if err != nil {
		return "", err
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", errdefs.Newf(errdefs.ErrUnknown, "load AWS config for ECR host %q: %v", host, err)
	}

	client := ecr.NewFromConfig(cfg)
	out, err := client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", errdefs.Newf(errdefs.ErrUnknown, "get ECR authorization token for %q: %v", host, err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", errdefs.Newf(errdefs.ErrUnknown, "ECR returned no authorization data for %q", host)
	}

	decoded, err := base64.StdEncoding.DecodeString(*out.AuthorizationData[0].AuthorizationToken)
	if err != nil {
		return "", errdefs.Newf(errdefs.ErrUnknown, "decode ECR authorization token: %v", err)
	}
	const prefix = "AWS:"
	s := string(decoded)
	if !strings.HasPrefix(s, prefix) {
		return "", errdefs.Newf(errdefs.ErrUnknown, "unexpected ECR authorization token format")
	}
	return strings.TrimPrefix(s, prefix), nil
}
