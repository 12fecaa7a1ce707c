// Package server implements the MCP (Model Context Protocol) server for the
// digit normalizer.
//
// It exposes the normalization pipeline and the configured classifier as
// MCP tools, so that an MCP client can inspect how a hand-drawn digit is
// prepared for the model and what the model makes of it.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logs go to stderr through zerolog, since stdout carries the protocol.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - digit_load: Load a capture file and report its size and border lightness
//   - digit_normalize: Run the pipeline and return the 28x28 canvas as PNG
//   - digit_predict: Run the pipeline and classify the result
//   - digit_model_info: Describe the classifier backend
//
// Captures are given either inline as image_base64 (optionally a data URL)
// or by absolute path. Files are decoded once and cached by path for the
// lifetime of the process.
//
// # Error Handling
//
// Failures are returned as JSON-RPC error responses:
//   - -32602 "Invalid image" when the capture cannot be decoded
//   - -32602 "Invalid params" when the tools/call params are malformed
//   - -32000 "Tool execution failed" for everything else, including a
//     missing classifier
//
// The data field carries the Go error string.
//
// # Usage
//
//	srv := server.New(pipeline.New(), classifier)
//	if err := srv.Run(); err != nil {
//	    log.Fatal().Err(err).Msg("server failed")
//	}
package server
