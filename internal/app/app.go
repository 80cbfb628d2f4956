// Package app wires configuration, AWS clients and the Gmail client into an
// archive service. Both the Lambda entry point and the local runner use it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"gmail-archiver/internal/config"
	"gmail-archiver/internal/domain"
	"gmail-archiver/internal/integrations/gmail"
	"gmail-archiver/internal/integrations/paramstore"
	"gmail-archiver/internal/repository"
	"gmail-archiver/internal/usecase"
)

// NewLogger returns a JSON logger, the format CloudWatch Logs indexes.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Build loads the default AWS configuration and wires the archive service.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*usecase.ArchiveService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}
	return wire(awsCfg, cfg, log)
}

func wire(awsCfg aws.Config, cfg config.Config, log *slog.Logger) (*usecase.ArchiveService, error) {
	creds, err := credentialSource(awsCfg, cfg)
	if err != nil {
		return nil, err
	}

	writer, err := repository.NewObjectWriter(awss3.NewFromConfig(awsCfg), cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("app: create object writer: %w", err)
	}

	var runs usecase.RunRecorder
	if cfg.RunTable != "" {
		ledger, err := repository.NewRunLedger(awsdynamodb.NewFromConfig(awsCfg), cfg.RunTable, cfg.RunTTL)
		if err != nil {
			return nil, fmt.Errorf("app: create run ledger: %w", err)
		}
		runs = ledger
	}

	client := gmail.NewClient(
		gmail.WithUserID(cfg.GmailUserID),
		gmail.WithPageSize(cfg.ListPageSize),
		gmail.WithLogger(log),
	)
	resolver := usecase.ResolverFunc(func(ctx context.Context, c domain.Credentials) (usecase.Mailbox, error) {
		mb, err := client.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		return mb, nil
	})

	svc, err := usecase.NewArchiveService(creds, resolver, writer, runs, log)
	if err != nil {
		return nil, fmt.Errorf("app: create archive service: %w", err)
	}
	return svc, nil
}

func credentialSource(awsCfg aws.Config, cfg config.Config) (usecase.CredentialSource, error) {
	if !cfg.UseParamStore() {
		return usecase.StaticCredentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RefreshToken: cfg.RefreshToken,
		}, nil
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	src, err := paramstore.NewCredentialSource(ssmClient, cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: create credential source: %w", err)
	}
	return src, nil
}
