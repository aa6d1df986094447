// Package webtransport provides a WebTransport server built on top of
// quic-go's HTTP/3 implementation. It handles the WebTransport upgrade
// handshake, session management, and bidirectional/unidirectional stream
// multiplexing over QUIC.
package webtransport
