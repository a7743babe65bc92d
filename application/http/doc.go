// Package http implements the HTTP/1.1 message syntax used on the wire by
// the scanner's transport: request and status lines, field lines and the
// encoders/decoders that move them over a connection.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
