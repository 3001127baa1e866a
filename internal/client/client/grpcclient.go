package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const defaultCallTimeout = 15 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func hasAccessToken(ctx context.Context) bool {
	md, ok := metadata.FromOutgoingContext(ctx)
	return ok && len(md.Get(common.AccessTokenHeaderName)) > 0
}

func (s *GRPCClient) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) setToken(t string) {
	s.mu.Lock()
	s.accessToken = t
	s.mu.Unlock()
}

// accessTokenInterceptor attaches the session token to session methods unless
// the caller already set one. An expired shared session is dropped so the next
// call fails fast until Login.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	shared := false
	if api.SessionMethods[method] && !hasAccessToken(ctx) {
		tok := s.token()
		if tok == "" {
			return status.Error(codes.Unauthenticated, "not logged in")
		}
		ctx = withAccessToken(ctx, tok)
		shared = true
	}

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err != nil && shared && status.Code(err) == codes.Unauthenticated {
		if status.Convert(err).Message() == common.ErrTokenExpired.Error() {
			s.setToken("")
		}
	}
	return err
}

func NewGRPCClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.dial(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) dial(opts ...grpc.DialOption) error {
	opts = append(opts,
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	if err := s.conn.Invoke(ctx, method, req, resp); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Register(ctx context.Context, req *api.RegisterRequest) (string, error) {
	var resp api.RegisterResponse
	if err := s.invoke(ctx, api.MethodRegister, req, &resp); err != nil {
		return "", err
	}
	return resp.AccountID, nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, email string) ([]byte, error) {
	var resp api.GetSaltResponse
	if err := s.invoke(ctx, api.MethodGetSalt, &api.GetSaltRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (s *GRPCClient) login(ctx context.Context, email, authKey string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := s.invoke(ctx, api.MethodLogin, &api.LoginRequest{Email: email, AuthKey: authKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) Login(ctx context.Context, email, authKey string) (string, error) {
	resp, err := s.login(ctx, email, authKey)
	if err != nil {
		return "", err
	}
	s.setToken(resp.Token)
	return resp.AccountID, nil
}

func (s *GRPCClient) Authenticate(ctx context.Context, email, authKey string) (string, error) {
	resp, err := s.login(ctx, email, authKey)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (s *GRPCClient) Logout() {
	s.setToken("")
}

func (s *GRPCClient) ReadVault(ctx context.Context) ([]byte, int64, error) {
	var resp api.ReadVaultResponse
	if err := s.invoke(ctx, api.MethodReadVault, &api.ReadVaultRequest{}, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Ciphertext, resp.Version, nil
}

func (s *GRPCClient) ReadVaultWithToken(ctx context.Context, token string) ([]byte, int64, error) {
	if token == "" {
		return nil, 0, common.ErrorUnauthorized
	}
	return s.ReadVault(withAccessToken(ctx, token))
}

func (s *GRPCClient) WriteVault(ctx context.Context, ciphertext []byte, expectedVersion int64) (int64, error) {
	var resp api.WriteVaultResponse
	req := &api.WriteVaultRequest{Ciphertext: ciphertext, ExpectedVersion: expectedVersion}
	if err := s.invoke(ctx, api.MethodWriteVault, req, &resp); err != nil {
		return 0, err
	}
	return resp.NewVersion, nil
}

func (s *GRPCClient) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (int64, error) {
	var resp api.ChangePasswordResponse
	if err := s.invoke(ctx, api.MethodChangePassword, req, &resp); err != nil {
		return 0, err
	}
	return resp.NewVersion, nil
}

func (s *GRPCClient) SendOtp(ctx context.Context, email string) error {
	return s.invoke(ctx, api.MethodSendOtp, &api.SendOtpRequest{Email: email}, &api.SendOtpResponse{})
}

func (s *GRPCClient) VerifyOtp(ctx context.Context, email, otp string) (*api.VerifyOtpResponse, error) {
	var resp api.VerifyOtpResponse
	if err := s.invoke(ctx, api.MethodVerifyOtp, &api.VerifyOtpRequest{Email: email, Otp: otp}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (int64, error) {
	var resp api.ResetPasswordResponse
	if err := s.invoke(ctx, api.MethodResetPassword, req, &resp); err != nil {
		return 0, err
	}
	return resp.NewVersion, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	var resp api.PingResponse
	if err := s.invoke(ctx, api.MethodPing, &api.PingRequest{}, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("%w: status %q", ErrUnavailable, resp.Status)
	}
	return nil
}

// mapError turns a gRPC status back into the sentinel the server started from.
func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unavailable:
		return ErrUnavailable
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	case codes.Aborted:
		for _, d := range st.Details() {
			if v, ok := d.(*wrapperspb.Int64Value); ok {
				return &common.VersionConflictError{Current: v.GetValue()}
			}
		}
		return common.ErrVersionConflict
	case codes.AlreadyExists:
		return common.ErrConflict
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.Unauthenticated:
		switch st.Message() {
		case common.ErrInvalidCredential.Error():
			return common.ErrInvalidCredential
		case common.ErrTokenExpired.Error():
			return common.ErrTokenExpired
		}
		return common.ErrorUnauthorized
	case codes.PermissionDenied:
		return common.ErrRecoveryFailed
	case codes.ResourceExhausted:
		return common.ErrTooManyRequests
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)
	case codes.Canceled:
		return context.Canceled
	}
	return fmt.Errorf("%w: %s", common.ErrorInternal, st.Message())
}
