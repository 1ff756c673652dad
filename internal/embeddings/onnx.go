package embeddings

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ErrONNXRuntimeMissing is returned when no ONNX runtime library is found.
var ErrONNXRuntimeMissing = errors.New("fastembed: ONNX runtime not found (set ONNX_PATH or install to ~/.config/tutord/lib)")

var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func getLibraryName(goos string) string {
	if name, ok := libraryNames[goos]; ok {
		return name
	}
	return "libonnxruntime.so"
}

func getONNXInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "tutord", "lib")
}

// GetONNXLibraryPath returns ONNX_PATH when set, else the managed install
// path when the library exists there, else "". fastembed-go reads ONNX_PATH.
func GetONNXLibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}
	managed := filepath.Join(getONNXInstallDir(), getLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// ONNXRuntimeExists reports whether a runtime library was found. A managed
// install is exported through ONNX_PATH so fastembed-go picks it up.
func ONNXRuntimeExists() bool {
	path := GetONNXLibraryPath()
	if path == "" {
		return false
	}
	if os.Getenv("ONNX_PATH") == "" {
		_ = os.Setenv("ONNX_PATH", path)
	}
	return true
}
