// Package grpc exposes the PinVault services over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/dmitrijs2005/pinvault/internal/server/auth"
	"github.com/dmitrijs2005/pinvault/internal/server/models"
	"github.com/dmitrijs2005/pinvault/internal/server/services"
	"google.golang.org/grpc"
)

// Accounts is the account surface the handlers need.
type Accounts interface {
	Register(ctx context.Context, email string, salt []byte, authKey string, backupEnvelope, initVault []byte) (string, error)
	Salt(ctx context.Context, email string) ([]byte, error)
	Login(ctx context.Context, email, authKey string) (*services.Session, error)
	ChangePassword(ctx context.Context, accountID string, c services.PasswordChange) (int64, error)
}

// Vaults is the vault surface the handlers need.
type Vaults interface {
	Read(ctx context.Context, accountID string) (*models.VaultRecord, error)
	Write(ctx context.Context, accountID string, ciphertext []byte, expectedVersion int64) (int64, error)
}

// Recovery is the recovery surface the handlers need.
type Recovery interface {
	RequestOtp(ctx context.Context, email string) error
	VerifyOtp(ctx context.Context, email, code string) (*services.Recovered, error)
	ResetPassword(ctx context.Context, r services.PasswordReset) (int64, error)
}

type GRPCServer struct {
	address  string
	accounts Accounts
	vaults   Vaults
	recovery Recovery
	tokens   *auth.Issuer
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, accounts Accounts, vaults Vaults, recovery Recovery, tokens *auth.Issuer) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		accounts: accounts,
		vaults:   vaults,
		recovery: recovery,
		tokens:   tokens,
	}
}

// NewServer builds a *grpc.Server with the interceptors and the service
// registered, without binding a listener.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.requestIDInterceptor, s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run serves on the configured address until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
