// Package canonical defines the gateway's dialect-neutral exchange types.
//
// Every inbound request, whatever protocol it arrived in, is converted into a
// Request before routing. Providers return a Response or a sequence of Chunks,
// which are converted back into the client's protocol on the way out. Nothing
// in this package knows about any wire format.
package canonical
