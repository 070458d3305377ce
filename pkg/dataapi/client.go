package dataapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/bridgerr"
	"github.com/pg-bridge/pgbridge/pkg/pgwire"
)

const maxAttempts = 3

// API is the slice of the statement-execution service the client
// uses. *rdsdata.Client satisfies it.
type API interface {
	ExecuteStatement(ctx context.Context, params *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BeginTransaction(ctx context.Context, params *rdsdata.BeginTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error)
	CommitTransaction(ctx context.Context, params *rdsdata.CommitTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error)
	RollbackTransaction(ctx context.Context, params *rdsdata.RollbackTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error)
}

// Settings carries the backend endpoint coordinates.
type Settings struct {
	ResourceArn     string
	SecretArn       string
	Database        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Client executes SQL against the Data API on behalf of exactly one
// connection. It owns the transaction identifier: at most one
// transaction is open at a time, and the identifier never survives a
// commit or rollback attempt, successful or not.
type Client struct {
	api      API
	settings Settings

	txID string
}

// NewClient builds the AWS service client. Static credentials are
// used when configured; otherwise resolution falls through the
// default chain (environment, container metadata, instance profile).
func NewClient(ctx context.Context, settings Settings) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer {
			return awsretry.NewAdaptiveMode(func(o *awsretry.AdaptiveModeOptions) {
				o.StandardOptions = append(o.StandardOptions, func(so *awsretry.StandardOptions) {
					so.MaxAttempts = maxAttempts
				})
			})
		}),
	}
	if settings.Region != "" {
		opts = append(opts, awsconfig.WithRegion(settings.Region))
	}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{
		api:      rdsdata.NewFromConfig(awsCfg),
		settings: settings,
	}, nil
}

// NewClientWithAPI wires an explicit API implementation.
func NewClientWithAPI(api API, settings Settings) *Client {
	return &Client{api: api, settings: settings}
}

// Execute runs one statement, inside the open transaction when one
// is held, and normalizes the response.
func (c *Client) Execute(ctx context.Context, sql string, params []any) (*pgwire.Result, error) {
	input := &rdsdata.ExecuteStatementInput{
		ResourceArn:           aws.String(c.settings.ResourceArn),
		SecretArn:             aws.String(c.settings.SecretArn),
		Database:              aws.String(c.settings.Database),
		Sql:                   aws.String(sql),
		IncludeResultMetadata: true,
		Parameters:            buildParameters(params),
	}
	if c.txID != "" {
		input.TransactionId = aws.String(c.txID)
	}

	out, err := c.api.ExecuteStatement(ctx, input)
	if err != nil {
		return nil, bridgerr.FromBackend(err)
	}
	return normalizeResult(out)
}

// BeginTx opens a backend transaction and records its identifier.
func (c *Client) BeginTx(ctx context.Context) error {
	if c.txID != "" {
		return bridgerr.New(bridgerr.CodeInternalError, "transaction already in progress")
	}
	out, err := c.api.BeginTransaction(ctx, &rdsdata.BeginTransactionInput{
		ResourceArn: aws.String(c.settings.ResourceArn),
		SecretArn:   aws.String(c.settings.SecretArn),
		Database:    aws.String(c.settings.Database),
	})
	if err != nil {
		return bridgerr.FromBackend(err)
	}
	if out.TransactionId == nil || *out.TransactionId == "" {
		return bridgerr.New(bridgerr.CodeInternalError, "backend returned no transaction id")
	}
	c.txID = *out.TransactionId
	return nil
}

// CommitTx commits the open transaction. The identifier is cleared
// before returning, even when the call fails, so the connection can
// never believe it is still inside a dead transaction.
func (c *Client) CommitTx(ctx context.Context) error {
	if c.txID == "" {
		return bridgerr.New(bridgerr.CodeInternalError, "no transaction in progress")
	}
	txID := c.txID
	c.txID = ""

	_, err := c.api.CommitTransaction(ctx, &rdsdata.CommitTransactionInput{
		ResourceArn:   aws.String(c.settings.ResourceArn),
		SecretArn:     aws.String(c.settings.SecretArn),
		TransactionId: aws.String(txID),
	})
	if err != nil {
		return bridgerr.FromBackend(err)
	}
	return nil
}

// RollbackTx mirrors CommitTx with a rollback call.
func (c *Client) RollbackTx(ctx context.Context) error {
	if c.txID == "" {
		return bridgerr.New(bridgerr.CodeInternalError, "no transaction in progress")
	}
	txID := c.txID
	c.txID = ""

	_, err := c.api.RollbackTransaction(ctx, &rdsdata.RollbackTransactionInput{
		ResourceArn:   aws.String(c.settings.ResourceArn),
		SecretArn:     aws.String(c.settings.SecretArn),
		TransactionId: aws.String(txID),
	})
	if err != nil {
		return bridgerr.FromBackend(err)
	}
	return nil
}

func (c *Client) InTx() bool {
	return c.txID != ""
}

func (c *Client) TxID() string {
	return c.txID
}

// Cleanup rolls back any open transaction. Failures are logged and
// swallowed; cleanup runs on connection teardown where nobody is left
// to receive an error.
func (c *Client) Cleanup(ctx context.Context) {
	if c.txID == "" {
		return
	}
	if err := c.RollbackTx(ctx); err != nil {
		bridgelog.Zero.Warn().Err(err).Msg("rollback during cleanup failed")
	}
}
