package shell

import (
	"context"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
)

var envVar = regexp.MustCompile(`\${([^}{]+)}`)

// ReplaceEnvVars - ${NAME} or ${NAME:default}, unknown names without default stay as is
func ReplaceEnvVars(text string) string {
	return envVar.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-1]

		key, def, hasDef := strings.Cut(key, ":")

		if value, ok := os.LookupEnv(key); ok {
			return value
		}

		if hasDef {
			return def
		}

		return match
	})
}

// RunUntilSignal - block until SIGINT or SIGTERM, then cancel the context
func RunUntilSignal(cancel context.CancelFunc) os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	sig := <-sigs
	cancel()
	return sig
}
