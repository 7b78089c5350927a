package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"notionmail/internal/config"
)

// ssmOperationTimeout bounds each AWS call made by the tool.
const ssmOperationTimeout = 15 * time.Second

// identityClient is the subset of STS used to confirm the active AWS identity.
type identityClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// awsIdentity is the caller resolved by STS.
type awsIdentity struct {
	AccountID string
	ARN       string
}

// defaultSSMPath is where the mailer of env looks for the refresh token.
func defaultSSMPath(env string) string {
	return fmt.Sprintf("/%s/notionmail/ms-refresh-token", env)
}

// verifyIdentity calls STS GetCallerIdentity so bad credentials fail before
// the token is written anywhere.
func verifyIdentity(ctx context.Context, client identityClient, logger *slog.Logger) (awsIdentity, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := client.GetCallerIdentity(opCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return awsIdentity{}, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w", err)
	}

	id := awsIdentity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
	}
	logger.Info("AWS identity verified", "account_id", id.AccountID, "arn", id.ARN)
	return id, nil
}

// confirmProduction asks the operator to type "yes" before a production
// write.
func confirmProduction(in io.Reader, out io.Writer, id awsIdentity, path string) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are writing a PRODUCTION secret")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "  Account:   %s\n", id.AccountID)
	fmt.Fprintf(out, "  ARN:       %s\n", id.ARN)
	fmt.Fprintf(out, "  Parameter: %s\n", path)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

// storeRefreshToken writes the token as a SecureString. The value is never
// logged, only its length.
func storeRefreshToken(ctx context.Context, w config.SecretWriter, path, refreshToken string, logger *slog.Logger) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("SSM path %q must be absolute", path)
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	if err := w.PutSecret(opCtx, path, config.SecretString(refreshToken)); err != nil {
		return err
	}
	logger.Info("SSM parameter written", "path", path, "value_length", len(refreshToken))
	return nil
}
