//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newCodec() (Codec, error) {
	return NewImagingCodec(defaultJPEGQuality), nil
}
