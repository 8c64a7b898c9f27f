// Prism is a multi-dialect LLM gateway.
//
// Clients speak the OpenAI, Anthropic or Gemini API; Prism decodes each
// request into one canonical form, routes it across a pool of upstream
// providers with health-aware load balancing and failover, and answers in
// the dialect the client used, streaming included.
//
// Usage:
//
//	# Start the gateway
//	prism run --config prism.yaml
//
//	# Check a configuration file and build every provider adapter
//	prism validate --config prism.yaml
//
//	# Inspect and change the provider pool of a running gateway
//	prism providers --addr 127.0.0.1:8080
//	prism providers add --id local --client echo
//	prism providers remove local
//
//	# Query the routing audit log
//	prism decisions --provider openai --since 1h
package main

import "os"

func main() {
	os.Exit(Execute())
}
