package decode

import (
	"bufio"
	"bytes"
	"net/textproto"
	"strings"

	"netrecon/internal/models"
)

// clientHelloServerName walks a TLS ClientHello looking for the
// server_name extension. Any structural surprise returns ("", false);
// truncated handshakes are common in real captures and must not panic.
func clientHelloServerName(b []byte) (string, bool) {
	// Record header: handshake(0x16), version, length. First handshake
	// message must be a ClientHello (0x01).
	if len(b) < 9 || b[0] != 0x16 || b[5] != 0x01 {
		return "", false
	}

	body := b[9:] // skip record header (5) + handshake type/length (4)
	pos := 0
	need := func(n int) bool { return pos+n <= len(body) }
	be16 := func(i int) int { return int(body[i])<<8 | int(body[i+1]) }

	// client_version + random
	if !need(2 + 32) {
		return "", false
	}
	pos += 34

	// session_id
	if !need(1) {
		return "", false
	}
	pos += 1 + int(body[pos])
	if pos > len(body) {
		return "", false
	}

	// cipher_suites
	if !need(2) {
		return "", false
	}
	pos += 2 + be16(pos)
	if pos > len(body) {
		return "", false
	}

	// compression_methods
	if !need(1) {
		return "", false
	}
	pos += 1 + int(body[pos])
	if pos > len(body) {
		return "", false
	}

	// extensions
	if !need(2) {
		return "", false
	}
	end := pos + 2 + be16(pos)
	pos += 2
	if end > len(body) {
		end = len(body)
	}

	for pos+4 <= end {
		extType := be16(pos)
		extLen := be16(pos + 2)
		pos += 4
		if pos+extLen > end {
			return "", false
		}
		if extType == 0 { // server_name
			ext := body[pos : pos+extLen]
			// server_name_list length (2), name_type (1), name length (2)
			if len(ext) < 5 || ext[2] != 0 {
				return "", false
			}
			nameLen := int(ext[3])<<8 | int(ext[4])
			if 5+nameLen > len(ext) || nameLen == 0 {
				return "", false
			}
			return string(ext[5 : 5+nameLen]), true
		}
		pos += extLen
	}
	return "", false
}

var httpMethods = []string{
	"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "TRACE", "CONNECT",
}

// parseHTTPRequest recognizes a cleartext HTTP request at the start of a
// TCP payload and pulls out the metadata fields. Header parse errors on
// truncated payloads keep whatever was readable.
func parseHTTPRequest(b []byte) (*models.HTTPInfo, bool) {
	if len(b) == 0 {
		return nil, false
	}

	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		return nil, false
	}
	line := strings.TrimRight(string(b[:nl]), "\r")
	fields := strings.Fields(line)
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/") {
		return nil, false
	}

	method := fields[0]
	known := false
	for _, m := range httpMethods {
		if method == m {
			known = true
			break
		}
	}
	if !known {
		return nil, false
	}

	req := &models.HTTPInfo{Method: method, URI: fields[1]}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(b[nl+1:])))
	hdr, _ := tp.ReadMIMEHeader() // partial headers are fine
	req.Host = hdr.Get("Host")
	req.UserAgent = hdr.Get("User-Agent")
	req.HasAuthHeader = hdr.Get("Authorization") != ""

	return req, true
}
