package cli

import (
	"fmt"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	tempHome, err := os.MkdirTemp("", "bkup-home-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp HOME: %v\n", err)
		os.Exit(1)
	}

	restore := map[string]*string{}
	for _, key := range []string{"HOME", "BKUP_HOME", "NO_COLOR"} {
		if v, ok := os.LookupEnv(key); ok {
			restore[key] = &v
		} else {
			restore[key] = nil
		}
	}

	if err := os.Setenv("HOME", tempHome); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set HOME: %v\n", err)
		_ = os.RemoveAll(tempHome)
		os.Exit(1)
	}
	_ = os.Setenv("BKUP_HOME", tempHome+"/.config/bkup")
	_ = os.Setenv("NO_COLOR", "1")

	code := m.Run()

	for key, v := range restore {
		if v != nil {
			_ = os.Setenv(key, *v)
		} else {
			_ = os.Unsetenv(key)
		}
	}
	_ = os.RemoveAll(tempHome)

	os.Exit(code)
}
