// Package routing plans which providers serve a request and in what order.
//
// A Balancer asks the registry for the eligible providers of the requested
// model and orders them with a Strategy (see package strategies). The result
// is a Plan: the fallback chain the dispatcher walks. A caller may name a
// provider explicitly, in which case the chain is exactly that provider and
// is never extended.
//
// The package also defines the Decision record, which describes how a
// request was routed: the chain, every attempt with its outcome, and the
// final lifecycle state.
package routing
