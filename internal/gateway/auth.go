package gateway

import (
	"context"
	"crypto/rand"
	"strconv"
	"strings"
	"sync"

	"pybridge/internal/interp"
)

// Token authentication arrived in the interpreter-side bridge library at
// patch 7; older deployments must not be asked to speak it.
const minAuthPatch = 7

const versionProbe = "__import__('pybridge_client').__version__"

// ShouldAuthenticate asks the interpreter for its bridge-library version and
// reports whether it is recent enough for token authentication. Any probe
// failure or unexpected version format deterministically means no: a session
// against an old library must still come up, just unauthenticated.
func ShouldAuthenticate(ctx context.Context, in interp.Interpreter) bool {
	version, err := in.EvalString(ctx, versionProbe)
	if err != nil {
		return false
	}
	return patchAtLeast(version, minAuthPatch)
}

func patchAtLeast(version string, min int) bool {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) != 3 {
		return false
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return false
	}
	return patch >= min
}

const (
	secretLen      = 48
	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	secretOnce sync.Once
	secretVal  string
)

// SharedSecret returns the process-wide authentication token, generating it
// on first use. Sessions in the same process reuse it; holding it is the
// capability to attach to the listener.
func SharedSecret() string {
	secretOnce.Do(func() {
		secretVal = randomToken(secretLen)
	})
	return secretVal
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(out)
}
