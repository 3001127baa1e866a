// Package client contains the transport half of the PinVault client.
//
// # Overview
//
// The package provides:
//  1. The Client interface the client services program against.
//  2. GRPCClient, which speaks the pinvault.v1.PinVault service with the JSON
//     codec from internal/api, injects the session token through a unary
//     interceptor and maps gRPC status codes back to sentinel errors.
//  3. InitDatabase and RunMigrations, which open the local SQLite cache and
//     apply its embedded goose migrations.
//
// # Error Handling
//
// Status codes come back as the sentinels of internal/common, so callers can
// use errors.Is on both sides of the wire. A rejected vault write surfaces as
// *common.VersionConflictError carrying the stored version. A dead server is
// ErrUnavailable.
package client
