// Package model owns the ONNX Runtime session lifecycle and tensor plumbing
// for the embedding extractor and the embedding classifier. The networks
// themselves are opaque pre-trained capabilities; nothing here inspects them
// beyond input/output tensor shapes.
package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// InitRuntime initializes the shared ONNX Runtime environment. It must be
// called once per process before any session is created. libPath points to
// the onnxruntime shared library; empty uses the platform default lookup.
func InitRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing onnxruntime environment: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the ONNX Runtime environment. Call on shutdown
// after all sessions have been destroyed.
func DestroyRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}
