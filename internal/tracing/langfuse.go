// Package tracing wires optional Langfuse observability into the eino
// callback chain. Tracing is opt-in: without credentials the assistant runs
// with no callback overhead at all.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

const defaultHost = "http://localhost:3000"

// Setup builds a Langfuse callback handler from LANGFUSE_PUBLIC_KEY,
// LANGFUSE_SECRET_KEY and LANGFUSE_HOST. The returned flush func must run
// before exit or buffered spans are lost. When credentials are absent the
// third return is false and both other values are nil.
func Setup() (callbacks.Handler, func(), bool) {
	pub := os.Getenv("LANGFUSE_PUBLIC_KEY")
	sec := os.Getenv("LANGFUSE_SECRET_KEY")
	if pub == "" || sec == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: pub,
		SecretKey: sec,
	})
	return handler, flush, true
}
