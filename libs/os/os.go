package os

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type logger interface {
	Info(msg string, keyvals ...interface{})
}

// TrapSignal catches SIGTERM and SIGINT and runs cleanupFunc before
// exiting with 128 plus the signal number.
func TrapSignal(logger logger, cleanupFunc func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logger.Info("signal trapped", "signal", sig.String())

		if cleanupFunc != nil {
			cleanupFunc()
		}

		exitCode := 128
		if s, ok := sig.(syscall.Signal); ok {
			exitCode += int(s)
		}

		os.Exit(exitCode)
	}()
}

// EnsureDir creates dir with mode unless it already exists.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("could not create directory %v: %w", dir, err)
	}
	return nil
}

func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// MustWriteFile writes contents to filePath and panics on failure.
func MustWriteFile(filePath string, contents []byte, mode os.FileMode) {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		panic(fmt.Sprintf("MustWriteFile failed: %v", err))
	}
}
