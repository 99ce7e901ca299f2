// Command alarm-decode decodes captured 8-byte alarm-with-timestamp records.
//
// Usage:
//
//	go run ./cmd/alarm-decode [--service humidity] 01e8070a10091e00 [...]
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chaz8081/gatt-sentry/internal/alarm"
)

func main() {
	serviceName := flag.String("service", "humidity", "service whose code names to use: humidity, soil_moisture, water_level, water_presence")
	flag.Parse()

	policy, ok := alarm.PolicyByName(*serviceName)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown service %q\n", *serviceName)
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: alarm-decode [--service name] <hex record>...")
		os.Exit(2)
	}

	failed := false
	for _, arg := range flag.Args() {
		line, err := decode(policy, arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", arg, err)
			failed = true
			continue
		}
		fmt.Println(line)
	}
	if failed {
		os.Exit(1)
	}
}

// decode formats one hex-encoded record. Spaces and colons are ignored so
// captures pasted from sniffers decode as-is.
func decode(policy alarm.Policy, s string) (string, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	rec, err := alarm.ParseRecord(raw)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s: code=%s (%d) timestamp=%s",
		policy.Name, policy.CodeName(rec.Code), rec.Code, rec.Timestamp), nil
}
