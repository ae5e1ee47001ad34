// Package wire builds and parses the ASCII, whitespace-delimited
// datagram messages (DISCOVERY, RESPONSE, REQUEST) and the fixed
// 1024-byte stream control header (PUT) described in spec §4.4/§4.5.
// These formats are wire contracts, bit-exact for interoperability —
// grounded on original_source/UDPServer.cpp's build*Message functions
// and TCPServer.cpp's control message assembly, reshaped from
// stringstream construction into fmt.Sprintf/strings.Fields.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
)

// ControlHeaderSize is the fixed, NUL-padded size of the stream
// control header. Senders must pad to exactly this many bytes;
// receivers must read exactly this many bytes before parsing.
const ControlHeaderSize = 1024

// Discovery is a parsed DISCOVERY message.
type Discovery struct {
	FileName    string
	TotalChunks int
	TTL         int
	Origin      peerutil.Endpoint
}

// BuildDiscovery formats "DISCOVERY <file> <total> <ttl> <host>:<port>".
func BuildDiscovery(d Discovery) string {
	return fmt.Sprintf("DISCOVERY %s %d %d %s", d.FileName, d.TotalChunks, d.TTL, d.Origin)
}

// ParseDiscovery parses a DISCOVERY message body (leading token
// already consumed by the caller's dispatch, tokens passed whole).
func ParseDiscovery(fields []string) (Discovery, error) {
	if len(fields) != 5 {
		return Discovery{}, fmt.Errorf("malformed DISCOVERY: want 5 fields, got %d", len(fields))
	}
	total, err := strconv.Atoi(fields[2])
	if err != nil {
		return Discovery{}, fmt.Errorf("malformed DISCOVERY total_chunks %q: %w", fields[2], err)
	}
	ttl, err := strconv.Atoi(fields[3])
	if err != nil {
		return Discovery{}, fmt.Errorf("malformed DISCOVERY ttl %q: %w", fields[3], err)
	}
	origin, err := parseEndpoint(fields[4])
	if err != nil {
		return Discovery{}, fmt.Errorf("malformed DISCOVERY origin %q: %w", fields[4], err)
	}
	return Discovery{FileName: fields[1], TotalChunks: total, TTL: ttl, Origin: origin}, nil
}

// Response is a parsed RESPONSE message.
type Response struct {
	FileName     string
	DeclaredRate int
	ChunkIDs     []int
}

// BuildResponse formats "RESPONSE <file> <rate> <chunk>*".
func BuildResponse(fileName string, rate int, chunkIDs []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RESPONSE %s %d", fileName, rate)
	for _, id := range chunkIDs {
		fmt.Fprintf(&b, " %d", id)
	}
	return b.String()
}

// ParseResponse parses a RESPONSE message body.
func ParseResponse(fields []string) (Response, error) {
	if len(fields) < 3 {
		return Response{}, fmt.Errorf("malformed RESPONSE: want at least 3 fields, got %d", len(fields))
	}
	rate, err := strconv.Atoi(fields[2])
	if err != nil {
		return Response{}, fmt.Errorf("malformed RESPONSE rate %q: %w", fields[2], err)
	}
	ids := make([]int, 0, len(fields)-3)
	for _, tok := range fields[3:] {
		id, err := strconv.Atoi(tok)
		if err != nil {
			return Response{}, fmt.Errorf("malformed RESPONSE chunk id %q: %w", tok, err)
		}
		ids = append(ids, id)
	}
	return Response{FileName: fields[1], DeclaredRate: rate, ChunkIDs: ids}, nil
}

// Request is a parsed REQUEST message.
type Request struct {
	FileName         string
	RequesterStreamPort int
	ChunkIDs         []int
}

// BuildRequest formats "REQUEST <file> <stream_port> <chunk>+".
func BuildRequest(fileName string, streamPort int, chunkIDs []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "REQUEST %s %d", fileName, streamPort)
	for _, id := range chunkIDs {
		fmt.Fprintf(&b, " %d", id)
	}
	return b.String()
}

// ParseRequest parses a REQUEST message body.
func ParseRequest(fields []string) (Request, error) {
	if len(fields) < 3 {
		return Request{}, fmt.Errorf("malformed REQUEST: want at least 3 fields, got %d", len(fields))
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return Request{}, fmt.Errorf("malformed REQUEST stream port %q: %w", fields[2], err)
	}
	ids := make([]int, 0, len(fields)-3)
	for _, tok := range fields[3:] {
		id, err := strconv.Atoi(tok)
		if err != nil {
			return Request{}, fmt.Errorf("malformed REQUEST chunk id %q: %w", tok, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return Request{}, fmt.Errorf("malformed REQUEST: no chunk ids")
	}
	return Request{FileName: fields[1], RequesterStreamPort: port, ChunkIDs: ids}, nil
}

// Put is a parsed PUT control header.
type Put struct {
	FileName     string
	ChunkID      int
	DeclaredRate int
	ChunkSize    int
}

// BuildPutHeader formats "PUT <file> <chunk_id> <rate> <size>" and
// NUL-pads it to exactly ControlHeaderSize bytes.
func BuildPutHeader(p Put) []byte {
	msg := fmt.Sprintf("PUT %s %d %d %d", p.FileName, p.ChunkID, p.DeclaredRate, p.ChunkSize)
	buf := make([]byte, ControlHeaderSize)
	copy(buf, msg)
	return buf
}

// ParsePutHeader parses an exactly-ControlHeaderSize-byte control
// header, trimming the NUL padding first.
func ParsePutHeader(header []byte) (Put, error) {
	if len(header) != ControlHeaderSize {
		return Put{}, fmt.Errorf("control header must be exactly %d bytes, got %d", ControlHeaderSize, len(header))
	}
	trimmed := strings.TrimRight(string(header), "\x00")
	fields := strings.Fields(trimmed)
	if len(fields) != 5 || fields[0] != "PUT" {
		return Put{}, fmt.Errorf("malformed PUT control header: %q", trimmed)
	}
	chunkID, err := strconv.Atoi(fields[2])
	if err != nil {
		return Put{}, fmt.Errorf("malformed PUT chunk id %q: %w", fields[2], err)
	}
	rate, err := strconv.Atoi(fields[3])
	if err != nil {
		return Put{}, fmt.Errorf("malformed PUT rate %q: %w", fields[3], err)
	}
	size, err := strconv.Atoi(fields[4])
	if err != nil {
		return Put{}, fmt.Errorf("malformed PUT size %q: %w", fields[4], err)
	}
	return Put{FileName: fields[1], ChunkID: chunkID, DeclaredRate: rate, ChunkSize: size}, nil
}

func parseEndpoint(s string) (peerutil.Endpoint, error) {
	host, portStr, ok := strings.Cut(s, ":")
	if !ok {
		return peerutil.Endpoint{}, fmt.Errorf("expected host:port, got %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return peerutil.Endpoint{}, fmt.Errorf("bad port in %q: %w", s, err)
	}
	return peerutil.Endpoint{Host: host, Port: port}, nil
}
