package grpc

import (
	"context"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"google.golang.org/grpc"
)

// unary adapts a typed handler to grpc.MethodDesc the way protoc-gen-go-grpc
// output does, so interceptors see the decoded request.
func unary[Req, Resp any](name, fullMethod string,
	call func(s *GRPCServer, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", api.MethodRegister, (*GRPCServer).Register),
		unary("GetSalt", api.MethodGetSalt, (*GRPCServer).GetSalt),
		unary("Login", api.MethodLogin, (*GRPCServer).Login),
		unary("ReadVault", api.MethodReadVault, (*GRPCServer).ReadVault),
		unary("WriteVault", api.MethodWriteVault, (*GRPCServer).WriteVault),
		unary("ChangePassword", api.MethodChangePassword, (*GRPCServer).ChangePassword),
		unary("SendOtp", api.MethodSendOtp, (*GRPCServer).SendOtp),
		unary("VerifyOtp", api.MethodVerifyOtp, (*GRPCServer).VerifyOtp),
		unary("ResetPassword", api.MethodResetPassword, (*GRPCServer).ResetPassword),
		unary("Ping", api.MethodPing, (*GRPCServer).Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pinvault/v1/pinvault.proto",
}
