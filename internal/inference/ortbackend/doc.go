// Package ortbackend registers an ONNX Runtime backend named "onnxruntime".
//
// The backend is compiled only with the onnxruntime build tag, since it links the
// ONNX Runtime shared library through cgo. Import the package for its side effect:
//
//	import _ "github.com/Sound-Bartender/MJPEGApp/internal/inference/ortbackend"
package ortbackend
