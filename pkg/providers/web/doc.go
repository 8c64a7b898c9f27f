// Package web implements the web-interface adapter variant: a WebSocket
// bridge to a web chat UI that has been turned into a pseudo-endpoint by an
// external automation process.
//
// Each request opens one connection, sends a single prompt frame and reads
// event frames until the bridge reports completion:
//
//	→ {"type":"prompt","id":"...","model":"...","messages":[...],"stream":true}
//	← {"type":"delta","id":"...","delta":"Hel"}
//	← {"type":"delta","id":"...","delta":"lo"}
//	← {"type":"done","id":"...","finish_reason":"stop","usage":{...}}
//
// A bridge failure is reported with {"type":"error","error":"..."}. Frames of
// any other type are ignored. Health probes use a WebSocket ping.
package web
