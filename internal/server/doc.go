// Package server implements the MCP (Model Context Protocol) server for UV coverage
// analysis.
//
// This package provides a JSON-RPC 2.0 server that exposes the coverage analyzer and
// the stored result history through the MCP protocol, so MCP-compatible clients can
// measure frames and browse past results without going through the HTTP service.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Lines that are not valid JSON get a -32700 parse error response with a null id.
//
// # Available Tools
//
//   - coverage_analyze: Threshold a frame and report the covered percentage, mask
//     counts and region bounds. Threshold and kernel size can be overridden per call.
//     The annotated overlay can be returned as base64 PNG or written next to the input.
//   - coverage_annotated_name: Map between original and "_detected" filenames.
//   - coverage_history: Recent stored results, newest first. Requires a result
//     database; see New.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(analyzer.DefaultOptions(), st)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
