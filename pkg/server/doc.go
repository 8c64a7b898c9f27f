// Package server assembles the gateway from configuration and manages its
// lifecycle.
//
// New builds the provider registry, the balancer and dispatcher, the
// dialect normalizer, metrics, tracing, the audit log and the health
// monitor, then mounts every route behind the middleware chain. Start binds
// the listener, starts the health probe and audit retention schedules and,
// when a config path was given, the file watcher that hot-reloads the
// provider set. It blocks until the context is cancelled, SIGINT or SIGTERM
// arrives, or Stop is called.
//
//	cfg, err := config.LoadConfigWithEnvOverrides("prism.yaml")
//	if err != nil {
//		return err
//	}
//	srv, err := server.New(cfg, server.Options{ConfigPath: "prism.yaml"})
//	if err != nil {
//		return err
//	}
//	return srv.Start(ctx)
//
// # Routes
//
//	POST   /v1/chat/completions               OpenAI chat
//	POST   /v1/completions                    OpenAI legacy completions
//	POST   /v1/messages                       Anthropic messages
//	POST   /v1/models/{model}:generateContent Gemini (also /v1beta, and
//	                                          :streamGenerateContent)
//	GET    /providers, /providers/{id}        registry snapshots
//	POST   /providers                         register or replace
//	DELETE /providers/{id}                    deregister
//	GET    /decisions                         audit log query
//	GET    /health, /ready, /version
//	GET    /metrics                           Prometheus exposition
//
// # Shutdown
//
// Shutdown stops accepting connections and waits up to
// proxy.shutdown_timeout for in-flight requests, including open streams.
// It then stops the schedules, flushes queued audit records, closes the
// provider adapters and flushes pending spans.
package server
