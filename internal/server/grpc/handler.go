package grpc

import (
	"context"

	"github.com/dmitrijs2005/pinvault/internal/api"
	"github.com/dmitrijs2005/pinvault/internal/server/services"
)

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	id, err := s.accounts.Register(ctx, req.Email, req.Salt, req.AuthKey, req.BackupKeyHash, req.InitVaultCiphertext)
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	return &api.RegisterResponse{AccountID: id}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *api.GetSaltRequest) (*api.GetSaltResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "GetSalt", err)
	}

	salt, err := s.accounts.Salt(ctx, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, "GetSalt", err)
	}

	return &api.GetSaltResponse{Salt: salt}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	session, err := s.accounts.Login(ctx, req.Email, req.AuthKey)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	return &api.LoginResponse{Token: session.Token, AccountID: session.AccountID}, nil
}

func (s *GRPCServer) ReadVault(ctx context.Context, _ *api.ReadVaultRequest) (*api.ReadVaultResponse, error) {
	accountID, err := accountFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "ReadVault", err)
	}

	rec, err := s.vaults.Read(ctx, accountID)
	if err != nil {
		return nil, s.toStatus(ctx, "ReadVault", err)
	}

	return &api.ReadVaultResponse{Ciphertext: rec.Ciphertext, Version: rec.Version}, nil
}

func (s *GRPCServer) WriteVault(ctx context.Context, req *api.WriteVaultRequest) (*api.WriteVaultResponse, error) {
	accountID, err := accountFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "WriteVault", err)
	}
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "WriteVault", err)
	}

	v, err := s.vaults.Write(ctx, accountID, req.Ciphertext, req.ExpectedVersion)
	if err != nil {
		return nil, s.toStatus(ctx, "WriteVault", err)
	}

	return &api.WriteVaultResponse{NewVersion: v}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.ChangePasswordResponse, error) {
	accountID, err := accountFromContext(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "ChangePassword", err)
	}
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "ChangePassword", err)
	}

	v, err := s.accounts.ChangePassword(ctx, accountID, services.PasswordChange{
		OldAuthKey:        req.OldAuthKey,
		NewSalt:           req.NewSalt,
		NewAuthKey:        req.NewAuthKey,
		NewEncryptedVault: req.NewEncryptedVault,
		NewBackupEnvelope: req.NewBackupKeyHash,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "ChangePassword", err)
	}

	return &api.ChangePasswordResponse{OK: true, NewVersion: v}, nil
}

func (s *GRPCServer) SendOtp(ctx context.Context, req *api.SendOtpRequest) (*api.SendOtpResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "SendOtp", err)
	}

	if err := s.recovery.RequestOtp(ctx, req.Email); err != nil {
		return nil, s.toStatus(ctx, "SendOtp", err)
	}

	return &api.SendOtpResponse{OK: true}, nil
}

func (s *GRPCServer) VerifyOtp(ctx context.Context, req *api.VerifyOtpRequest) (*api.VerifyOtpResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "VerifyOtp", err)
	}

	rec, err := s.recovery.VerifyOtp(ctx, req.Email, req.Otp)
	if err != nil {
		return nil, s.toStatus(ctx, "VerifyOtp", err)
	}

	return &api.VerifyOtpResponse{BackupEnvelope: rec.BackupEnvelope, ResetToken: rec.ResetToken}, nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (*api.ResetPasswordResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, "ResetPassword", err)
	}

	v, err := s.recovery.ResetPassword(ctx, services.PasswordReset{
		ResetToken:        req.ResetToken,
		NewSalt:           req.NewSalt,
		NewAuthKey:        req.NewAuthKey,
		NewBackupEnvelope: req.NewBackupKeyHash,
		NewEncryptedVault: req.NewEncryptedVault,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "ResetPassword", err)
	}

	return &api.ResetPasswordResponse{OK: true, NewVersion: v}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}
