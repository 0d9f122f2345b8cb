// Package server exposes the dispatcher over HTTP. Streaming endpoints speak
// server-sent events; everything else is plain JSON.
package server
