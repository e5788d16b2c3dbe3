package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	grpc_prometheus "github.com/jon-whit/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"

	"github.com/evansims/fgacache/pkg/tuple"
)

// GRPCClient talks to the remote authorization service over its gRPC
// surface. Store and model are fixed at construction.
type GRPCClient struct {
	conn    *grpc.ClientConn
	client  openfgav1.OpenFGAServiceClient
	storeID string
	modelID string
}

var _ AuthorizationClient = (*GRPCClient)(nil)

// GRPCClientOpt defines an option that can be used to change the behavior
// of a GRPCClient instance.
type GRPCClientOpt func(*grpcClientConfig)

type grpcClientConfig struct {
	tlsEnabled bool
	caCertPath string
	perRPC     credentials.PerRPCCredentials
	retries    uint
}

// WithTLS dials the remote service with transport security. caCertPath may
// name an extra CA bundle to trust, empty for the system pool.
func WithTLS(caCertPath string) GRPCClientOpt {
	return func(c *grpcClientConfig) {
		c.tlsEnabled = true
		c.caCertPath = caCertPath
	}
}

// WithPerRPCCredentials attaches call credentials to every RPC.
func WithPerRPCCredentials(creds credentials.PerRPCCredentials) GRPCClientOpt {
	return func(c *grpcClientConfig) {
		c.perRPC = creds
	}
}

// WithMaxRetries bounds how often a retryable RPC is re-attempted.
func WithMaxRetries(n uint) GRPCClientOpt {
	return func(c *grpcClientConfig) {
		c.retries = n
	}
}

// NewGRPCClient dials apiURL and returns a client bound to the given store
// and authorization model. Unavailable and resource-exhausted RPCs are
// retried with exponential backoff before failing.
func NewGRPCClient(apiURL, storeID, modelID string, opts ...GRPCClientOpt) (*GRPCClient, error) {
	cfg := &grpcClientConfig{retries: 3}
	for _, opt := range opts {
		opt(cfg)
	}

	creds := insecure.NewCredentials()
	if cfg.tlsEnabled {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system cert pool: %w", err)
		}
		if cfg.caCertPath != "" {
			pem, err := os.ReadFile(cfg.caCertPath)
			if err != nil {
				return nil, fmt.Errorf("read ca cert: %w", err)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.caCertPath)
			}
		}
		creds = credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: grpcbackoff.DefaultConfig}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			grpc_prometheus.UnaryClientInterceptor,
			retry.UnaryClientInterceptor(
				retry.WithCodes(codes.Unavailable, codes.ResourceExhausted),
				retry.WithMax(cfg.retries),
				retry.WithBackoff(retry.BackoffExponential(100*time.Millisecond)),
			),
		),
	}
	if cfg.perRPC != nil {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(cfg.perRPC))
	}

	conn, err := grpc.NewClient(apiURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", apiURL, err)
	}

	return &GRPCClient{
		conn:    conn,
		client:  openfgav1.NewOpenFGAServiceClient(conn),
		storeID: storeID,
		modelID: modelID,
	}, nil
}

func (c *GRPCClient) Check(ctx context.Context, req CheckRequest) (bool, error) {
	pbReq := &openfgav1.CheckRequest{
		StoreId:              c.storeID,
		AuthorizationModelId: c.modelID,
		TupleKey: &openfgav1.CheckRequestTupleKey{
			User:     req.Tuple.User,
			Relation: req.Tuple.Relation,
			Object:   req.Tuple.Object,
		},
	}

	if len(req.ContextualTuples) > 0 {
		pbReq.ContextualTuples = &openfgav1.ContextualTupleKeys{
			TupleKeys: toProtoTupleKeys(req.ContextualTuples),
		}
	}

	if len(req.Context) > 0 {
		pbContext, err := structpb.NewStruct(req.Context)
		if err != nil {
			return false, fmt.Errorf("encode check context: %w", err)
		}
		pbReq.Context = pbContext
	}

	resp, err := c.client.Check(ctx, pbReq)
	if err != nil {
		return false, mapGRPCError("check", err)
	}

	return resp.GetAllowed(), nil
}

func (c *GRPCClient) WriteTuples(ctx context.Context, tuples []tuple.TupleKey) error {
	if len(tuples) == 0 {
		return nil
	}

	_, err := c.client.Write(ctx, &openfgav1.WriteRequest{
		StoreId:              c.storeID,
		AuthorizationModelId: c.modelID,
		Writes: &openfgav1.WriteRequestWrites{
			TupleKeys: toProtoTupleKeys(tuples),
		},
	})
	if err != nil {
		return mapGRPCError("write", err)
	}

	return nil
}

func (c *GRPCClient) DeleteTuples(ctx context.Context, tuples []tuple.TupleKey) error {
	if len(tuples) == 0 {
		return nil
	}

	deletes := make([]*openfgav1.TupleKeyWithoutCondition, 0, len(tuples))
	for _, t := range tuples {
		deletes = append(deletes, &openfgav1.TupleKeyWithoutCondition{
			User:     t.User,
			Relation: t.Relation,
			Object:   t.Object,
		})
	}

	_, err := c.client.Write(ctx, &openfgav1.WriteRequest{
		StoreId:              c.storeID,
		AuthorizationModelId: c.modelID,
		Deletes: &openfgav1.WriteRequestDeletes{
			TupleKeys: deletes,
		},
	})
	if err != nil {
		return mapGRPCError("delete", err)
	}

	return nil
}

func (c *GRPCClient) ListObjects(ctx context.Context, user, relation, objectType string) ([]string, error) {
	resp, err := c.client.ListObjects(ctx, &openfgav1.ListObjectsRequest{
		StoreId:              c.storeID,
		AuthorizationModelId: c.modelID,
		User:                 user,
		Relation:             relation,
		Type:                 objectType,
	})
	if err != nil {
		return nil, mapGRPCError("list objects", err)
	}

	return resp.GetObjects(), nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func toProtoTupleKeys(tuples []tuple.TupleKey) []*openfgav1.TupleKey {
	out := make([]*openfgav1.TupleKey, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, &openfgav1.TupleKey{
			User:     t.User,
			Relation: t.Relation,
			Object:   t.Object,
		})
	}
	return out
}

// mapGRPCError folds transport and availability failures into
// ErrRemoteUnavailable so the cache layers can tell them apart from
// validation errors, which pass through untouched.
func mapGRPCError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return fmt.Errorf("%s: %w: %s", op, ErrRemoteUnavailable, st.Message())
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
