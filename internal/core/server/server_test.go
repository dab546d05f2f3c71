package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solatis/pricekeeper/internal/core/api"
	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/core/config"
	"github.com/solatis/pricekeeper/internal/core/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("testsecret1234567890abcdefghijklmnop")

type memKeys struct {
	byHash map[string]auth.KeyRecord
}

func (m *memKeys) APIKeyByHash(ctx context.Context, keyHash string) (auth.KeyRecord, error) {
	rec, ok := m.byHash[keyHash]
	if !ok {
		return auth.KeyRecord{}, auth.ErrInvalidKey
	}
	return rec, nil
}

func (m *memKeys) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return nil
}

// echoService answers every call with the caller's seller and deadline.
type echoService struct{}

func (echoService) EvaluatePrice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, _ := auth.PrincipalFromContext(ctx)
	_, hasDeadline := ctx.Deadline()
	return structpb.NewStruct(map[string]any{"sellerId": p.SellerID, "deadline": hasDeadline})
}

func (echoService) SelectBuybox(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	panic("boom")
}

func (echoService) TransitionRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.FailedPrecondition, "not allowed")
}

func (echoService) DetectConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

type rpcCalls struct {
	mu    sync.Mutex
	calls []string
}

func (r *rpcCalls) RPC(method, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, method+":"+code)
}

func (r *rpcCalls) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startServer(t *testing.T) (*grpc.ClientConn, string, *rpcCalls) {
	t.Helper()
	keys := &memKeys{byHash: map[string]auth.KeyRecord{}}
	key, hash, err := auth.GenerateAPIKey(testSecretID, testSecret)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	keys.byHash[hash] = auth.KeyRecord{ID: "key-1", SellerID: "seller-1"}

	rec := &rpcCalls{}
	cfg := config.Default().API
	srv, err := NewGRPCServer(cfg, echoService{}, auth.NewAuthenticator(map[string][]byte{testSecretID: testSecret}, keys), rec, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, key, rec
}

func TestNewGRPCServer_RequiresDependencies(t *testing.T) {
	authn := auth.NewAuthenticator(nil, &memKeys{})
	if _, err := NewGRPCServer(config.Default().API, nil, authn, nil, nil); err == nil {
		t.Error("NewGRPCServer(nil service) succeeded, want error")
	}
	if _, err := NewGRPCServer(config.Default().API, echoService{}, nil, nil, nil); err == nil {
		t.Error("NewGRPCServer(nil authenticator) succeeded, want error")
	}
}

func TestGRPCServer_HealthNeedsNoKey(t *testing.T) {
	conn, _, _ := startServer(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Check() = %v, want SERVING", resp.Status)
	}
}

func TestGRPCServer_Authentication(t *testing.T) {
	conn, key, rec := startServer(t)
	out := &structpb.Struct{}

	err := conn.Invoke(context.Background(), api.MethodEvaluatePrice, &structpb.Struct{}, out)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Invoke() without key = %v, want Unauthenticated", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key)
	if err := conn.Invoke(ctx, api.MethodEvaluatePrice, &structpb.Struct{}, out); err != nil {
		t.Fatalf("Invoke() with key error = %v", err)
	}
	if got := out.Fields["sellerId"].GetStringValue(); got != "seller-1" {
		t.Errorf("principal seller = %q, want seller-1", got)
	}
	if !out.Fields["deadline"].GetBoolValue() {
		t.Error("handler context has no deadline, want request timeout applied")
	}

	want := []string{"EvaluatePrice:Unauthenticated", "EvaluatePrice:OK"}
	got := rec.list()
	if len(got) != len(want) {
		t.Fatalf("recorded = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recorded[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGRPCServer_HandlerErrors(t *testing.T) {
	conn, key, rec := startServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key)

	err := conn.Invoke(ctx, api.MethodSelectBuybox, &structpb.Struct{}, &structpb.Struct{})
	if status.Code(err) != codes.Internal {
		t.Errorf("panicking handler = %v, want Internal", err)
	}
	err = conn.Invoke(ctx, api.MethodTransitionRule, &structpb.Struct{}, &structpb.Struct{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("TransitionRule = %v, want FailedPrecondition", err)
	}

	got := strings.Join(rec.list(), ",")
	if got != "SelectBuybox:Internal,TransitionRule:FailedPrecondition" {
		t.Errorf("recorded = %s", got)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestAdminRouter(t *testing.T) {
	rec := metrics.New()
	rec.RPC("EvaluatePrice", "OK")

	tests := []struct {
		name     string
		db       Pinger
		path     string
		wantCode int
		wantBody string
	}{
		{"healthy", fakePinger{}, "/healthz", http.StatusOK, "ok"},
		{"database down", fakePinger{err: errors.New("connection refused")}, "/healthz", http.StatusServiceUnavailable, "database unavailable"},
		{"metrics", fakePinger{}, "/metrics", http.StatusOK, `pricekeeper_rpc_requests_total{code="OK",method="EvaluatePrice"} 1`},
		{"unknown route", fakePinger{}, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewAdminRouter(rec.Handler(), tt.db))
			defer srv.Close()

			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s error = %v", tt.path, err)
			}
			defer resp.Body.Close()
			body := new(strings.Builder)
			if _, err := io.Copy(body, resp.Body); err != nil {
				t.Fatal(err)
			}

			if resp.StatusCode != tt.wantCode {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(body.String(), tt.wantBody) {
				t.Errorf("GET %s body = %q, want it to contain %q", tt.path, body.String(), tt.wantBody)
			}
		})
	}
}
