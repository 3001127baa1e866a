package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT / pseudo-salt HMAC secret
//	-t int      session token validity, minutes
//	-r int      reset token validity, minutes
//	-o int      OTP validity, minutes (at most 10)
//	-m string   mail backend: log | ses
//	-g string   SES region
//	-f string   SES sender address
//	-l string   log level: debug | info | warn | error
//	-w int      mail dispatcher workers
//
// Durations are whole minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-o", "-m", "-g", "-f", "-l", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session token validity (in minutes)")
	resetTTL := fs.Int("r", int(config.ResetTokenTTL.Minutes()), "reset token validity (in minutes)")
	otpTTL := fs.Int("o", int(config.OtpTTL.Minutes()), "one-time code validity (in minutes)")

	fs.StringVar(&config.MailBackend, "m", config.MailBackend, "mail backend (log|ses)")
	fs.StringVar(&config.SESRegion, "g", config.SESRegion, "SES region")
	fs.StringVar(&config.SESSender, "f", config.SESSender, "SES sender address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.IntVar(&config.DispatcherWorkers, "w", config.DispatcherWorkers, "mail dispatcher workers")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.ResetTokenTTL = time.Duration(*resetTTL) * time.Minute
	config.OtpTTL = time.Duration(*otpTTL) * time.Minute
}
