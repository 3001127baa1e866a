package api

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pinvault.v1.PinVault"

// Full method names.
const (
	MethodRegister       = "/" + ServiceName + "/Register"
	MethodGetSalt        = "/" + ServiceName + "/GetSalt"
	MethodLogin          = "/" + ServiceName + "/Login"
	MethodReadVault      = "/" + ServiceName + "/ReadVault"
	MethodWriteVault     = "/" + ServiceName + "/WriteVault"
	MethodChangePassword = "/" + ServiceName + "/ChangePassword"
	MethodSendOtp        = "/" + ServiceName + "/SendOtp"
	MethodVerifyOtp      = "/" + ServiceName + "/VerifyOtp"
	MethodResetPassword  = "/" + ServiceName + "/ResetPassword"
	MethodPing           = "/" + ServiceName + "/Ping"
)

// SessionMethods require a session token in the access_token metadata key.
var SessionMethods = map[string]bool{
	MethodReadVault:      true,
	MethodWriteVault:     true,
	MethodChangePassword: true,
}
