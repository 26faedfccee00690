// Package server contains the optional network surfaces of the transcriber:
// an HTTP API for health, statistics and Prometheus metrics, a websocket
// mirror of the JSON line output, and a UDP receiver that feeds raw PCM into
// stream mode.
package server
