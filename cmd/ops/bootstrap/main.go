// Package main implements the bootstrap CLI that mints the Microsoft refresh
// token the mailer runs on.
//
// The operator signs in once with the device-code flow under the account
// that will send the emails. The resulting refresh token is either printed
// (to paste into MS_REFRESH_TOKEN) or stored in SSM Parameter Store where the
// mailer resolves it through MS_REFRESH_TOKEN_SSM_PARAM.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --client-id=<app id>
//	go run ./cmd/ops/bootstrap --client-id=<app id> --store --env=prod --profile=mailer-prod
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"notionmail/internal/config"
	"notionmail/internal/external"
)

// Supported environments for stored tokens.
var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

func main() {
	clientIDFlag := flag.String("client-id", os.Getenv("MS_CLIENT_ID"), "Application (client) ID of the public client [required]")
	tenantFlag := flag.String("tenant", envOr("MS_TENANT", external.DefaultTenant), "Microsoft tenant (consumers, organizations, common or a tenant ID)")
	storeFlag := flag.Bool("store", false, "Store the refresh token in SSM Parameter Store instead of printing it")
	envFlag := flag.String("env", "dev", "Target environment when storing (dev/staging/prod)")
	pathFlag := flag.String("ssm-path", "", "SSM parameter path (default: /<env>/notionmail/ms-refresh-token)")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: uses default credential chain)")
	regionFlag := flag.String("region", envOr("AWS_REGION", "us-east-1"), "AWS region")
	skipVerifyFlag := flag.Bool("skip-verify", false, "Do not exchange the new refresh token once to prove it works")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "NotionMail Bootstrap Tool\n\n")
		fmt.Fprintf(os.Stderr, "Signs in with the device-code flow and produces the refresh token\n")
		fmt.Fprintf(os.Stderr, "the mailer uses to send through Microsoft Graph.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  bootstrap --client-id=ID [--tenant=T] [--store --env=dev [--profile=NAME] [--region=REGION]]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *clientIDFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --client-id is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *storeFlag && !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", *envFlag)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	oauthCfg := deviceConfig(*clientIDFlag, *tenantFlag)

	tok, err := signIn(ctx, oauthCfg, os.Stderr)
	if err != nil {
		logger.Error("sign-in failed", "error", err)
		os.Exit(1)
	}
	refreshToken := tok.RefreshToken
	logger.Info("sign-in completed", "scope", tok.Extra("scope"))

	if !*skipVerifyFlag {
		refreshToken, err = verifyRefreshToken(ctx, &http.Client{Timeout: 30 * time.Second}, oauthCfg, refreshToken, logger)
		if err != nil {
			logger.Error("refresh token verification failed", "error", err)
			os.Exit(1)
		}
	}

	if !*storeFlag {
		fmt.Fprintln(os.Stderr, "Set MS_REFRESH_TOKEN to the value below:")
		fmt.Println(refreshToken)
		return
	}

	var opts []func(*awsconfig.LoadOptions) error
	if *regionFlag != "" {
		opts = append(opts, awsconfig.WithRegion(*regionFlag))
	}
	if *profileFlag != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(*profileFlag))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("loading AWS config failed", "error", err)
		os.Exit(1)
	}

	identity, err := verifyIdentity(ctx, sts.NewFromConfig(awsCfg), logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	path := *pathFlag
	if path == "" {
		path = defaultSSMPath(*envFlag)
	}

	if *envFlag == "prod" && !confirmProduction(os.Stdin, os.Stderr, identity, path) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		os.Exit(0)
	}

	if err := storeRefreshToken(ctx, config.NewSSMProviderFromConfig(awsCfg), path, refreshToken, logger); err != nil {
		logger.Error("storing refresh token failed", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Stored. Set MS_REFRESH_TOKEN_SSM_PARAM=%s for the mailer.\n", path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
