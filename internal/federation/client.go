package federation

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/acip-dev/fck/internal/federation/federationpb"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
)

// Client implements kernel.FederationClient over the gRPC mTLS
// transport defined in federationpb. It is transport-agnostic from the
// kernel's point of view: the kernel only sees Request/Result shapes.
type Client struct {
	conn   *grpc.ClientConn
	stub   federationpb.FederationServiceClient
	source string
	log    *zap.Logger
	timeout time.Duration
}

// DialClient opens an mTLS connection to a federation peer at addr and
// returns a ready-to-use Client. source identifies this peer in results
// returned to the kernel (the "source" field of FederationResult).
func DialClient(addr, source string, tlsCfg *tls.Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	if err != nil {
		return nil, fmt.Errorf("federation: dial %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		stub:    federationpb.NewFederationServiceClient(conn),
		source:  source,
		log:     log,
		timeout: 10 * time.Second,
	}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request implements kernel.FederationClient.
func (c *Client) Request(ctx context.Context, req kernel.FederationRequest) (kernel.FederationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payloadJSON, err := encodeScalarMap(req.Payload)
	if err != nil {
		return kernel.FederationResult{}, fmt.Errorf("federation: encode payload: %w", err)
	}

	resp, err := c.stub.Dispatch(ctx, &federationpb.OperationRequest{
		TraceId:     req.TraceID,
		AgentId:     req.AgentID,
		Operation:   req.Operation,
		RiskTier:    string(req.RiskTier),
		PayloadJson: payloadJSON,
	})
	if err != nil {
		c.log.Warn("federation dispatch transport error",
			zap.String("operation", req.Operation), zap.Error(err))
		return kernel.FederationResult{OK: false, Error: "TRANSPORT_ERROR"}, nil
	}

	if !resp.Ok {
		return kernel.FederationResult{OK: false, Error: resp.Error, Source: resp.Source}, nil
	}

	result, err := decodeScalarMap(resp.ResultJson)
	if err != nil {
		return kernel.FederationResult{OK: false, Error: "MALFORMED_RESULT"}, nil
	}

	src := resp.Source
	if src == "" {
		src = c.source
	}
	return kernel.FederationResult{OK: true, Result: result, Source: src}, nil
}

// RateLimited wraps a FederationClient with a token-bucket gate, so
// exhausted budget surfaces as FEDERATION_ERROR:RATE_LIMITED before the
// underlying transport is ever touched.
type RateLimited struct {
	inner  kernel.FederationClient
	bucket interface {
		ConsumeForRiskTier(manifest.RiskTier) bool
	}
}

// NewRateLimited wraps inner with bucket.
func NewRateLimited(inner kernel.FederationClient, bucket interface {
	ConsumeForRiskTier(manifest.RiskTier) bool
}) *RateLimited {
	return &RateLimited{inner: inner, bucket: bucket}
}

// Request implements kernel.FederationClient.
func (r *RateLimited) Request(ctx context.Context, req kernel.FederationRequest) (kernel.FederationResult, error) {
	if !r.bucket.ConsumeForRiskTier(req.RiskTier) {
		return kernel.FederationResult{OK: false, Error: "RATE_LIMITED"}, nil
	}
	return r.inner.Request(ctx, req)
}
