package parsers

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// albFieldPosition are the 0-indexed column positions AWS ALB access logs
// use for the fields this parser cares about (1-indexed in AWS's own docs).
const (
	albFieldType                   = 0
	albFieldTime                   = 1
	albFieldELB                    = 2
	albFieldClientPort             = 3
	albFieldRequestProcessingTime  = 5
	albFieldTargetProcessingTime   = 6
	albFieldResponseProcessingTime = 7
	albFieldStatusCode             = 8
	albFieldReceivedBytes          = 10
	albFieldSentBytes              = 11
	albFieldRequest                = 12
	albFieldUserAgent              = 13
	albFieldSSLProtocol            = 15
	albFieldTargetGroupARN         = 16
	albFieldTraceID                = 17

	albMinFieldCount = 17
)

// ALBOptions configures the AWS ALB access log parser.
type ALBOptions struct {
	StrictValidation bool
}

// ParseALB reads AWS Application Load Balancer access log lines (space
// separated, shell-quoted per AWS's own format) and yields one
// ingestion.Record per valid line via emit. Lines with fewer than
// albMinFieldCount tokens are skipped as malformed.
func ParseALB(r io.Reader, opts ALBOptions, emit func(ingestion.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, ok, err := ParseALBLine(line)
		if err != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: err.Error(), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid ALB line %d: %v", lineNumber, err)
			continue
		}
		if !ok {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ALB log: %w", err)
	}
	return nil
}

// ParseALBLine parses a single ALB access log line into a Record. ok is
// false for structurally valid-but-unusable lines (dash request lines); err
// is non-nil for lines this parser cannot make sense of, including a
// client:port field with no extractable IP.
func ParseALBLine(line string) (ingestion.Record, bool, error) {
	fields, err := shlexSplit(line)
	if err != nil {
		return ingestion.Record{}, false, fmt.Errorf("shlex split failed: %w", err)
	}
	if len(fields) < albMinFieldCount {
		return ingestion.Record{}, false, fmt.Errorf("line has %d fields, expected at least %d", len(fields), albMinFieldCount)
	}

	timestamp, err := parseALBTimestamp(fields[albFieldTime])
	if err != nil {
		return ingestion.Record{}, false, fmt.Errorf("parsing timestamp %q: %w", fields[albFieldTime], err)
	}

	clientIP, ok := extractALBClientIP(fields[albFieldClientPort])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("failed to extract client IP from %q", fields[albFieldClientPort])
	}

	statusCode, ok := ToOptionalInt(fields[albFieldStatusCode])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid status code %q", fields[albFieldStatusCode])
	}

	method, host, path, queryString, protocol := parseALBRequestLine(fields[albFieldRequest])
	if method == "" {
		return ingestion.Record{}, false, nil
	}

	userAgent := fields[albFieldUserAgent]
	if userAgent == "-" {
		userAgent = ""
	}

	rec := ingestion.NewRecord(timestamp, clientIP, method, host, path, statusCode, userAgent)

	if queryString != "" {
		rec.QueryString, rec.HasQueryString = queryString, true
	}
	if n, ok := ToOptionalInt64(fields[albFieldReceivedBytes]); ok {
		rec.RequestBytes, rec.HasRequestBytes = n, true
	}
	if n, ok := ToOptionalInt64(fields[albFieldSentBytes]); ok {
		rec.ResponseBytes, rec.HasResponseBytes = n, true
	}
	if sslProtocol := fields[albFieldSSLProtocol]; sslProtocol != "-" {
		rec.SSLProtocol, rec.HasSSLProtocol = sslProtocol, true
	}
	if protocol != "" {
		rec.Protocol, rec.HasProtocol = protocol, true
	}
	if ms, ok := calculateALBResponseTimeMs(fields); ok {
		rec.ResponseTimeMs, rec.HasResponseTimeMs = ms, true
	}

	extra := make(map[string]any)
	if reqType := fields[albFieldType]; reqType != "" && reqType != "-" {
		extra["type"] = reqType
	}
	if elb := fields[albFieldELB]; elb != "" && elb != "-" {
		extra["elb"] = elb
	}
	if arn := fields[albFieldTargetGroupARN]; arn != "" && arn != "-" {
		extra["target_group_arn"] = arn
	}
	if len(fields) > albFieldTraceID {
		if traceID := fields[albFieldTraceID]; traceID != "" && traceID != "-" {
			extra["trace_id"] = traceID
		}
	}
	rec.Extra = extra

	return rec, true, nil
}

// parseALBTimestamp parses the ISO 8601 timestamp ALB writes (always UTC,
// "Z"-suffixed, microsecond precision).
func parseALBTimestamp(s string) (time.Time, error) {
	candidate := strings.TrimSuffix(s, "Z")
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, candidate+"Z"); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp")
}

// extractALBClientIP pulls the IP out of a client:port field, handling
// bracketed IPv6 ("[2001:db8::1]:54321") and plain IPv4 ("192.0.2.1:54321").
func extractALBClientIP(clientPort string) (string, bool) {
	if clientPort == "" || clientPort == "-" {
		return "", false
	}
	if strings.HasPrefix(clientPort, "[") {
		if end := strings.Index(clientPort, "]"); end != -1 {
			return clientPort[1:end], true
		}
		return "", false
	}
	idx := strings.LastIndex(clientPort, ":")
	if idx == -1 {
		return clientPort, true
	}
	return clientPort[:idx], true
}

// parseALBRequestLine splits an ALB request-line field ("METHOD URL
// HTTP/VERSION") into method, host, path, query string, and protocol. An
// empty method signals an unusable ("- - -") request line.
func parseALBRequestLine(requestLine string) (method, host, path, queryString, protocol string) {
	if requestLine == "" || requestLine == "- - -" {
		return "", "", "/", "", ""
	}
	parts := strings.Split(requestLine, " ")
	if len(parts) < 2 {
		return "", "", "/", "", ""
	}
	method = parts[0]
	if method == "-" {
		return "", "", "/", "", ""
	}
	rawURL := parts[1]
	if rawURL == "-" {
		return method, "", "/", "", ""
	}
	if len(parts) >= 3 && parts[2] != "-" && parts[2] != "" {
		protocol = parts[2]
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		if !strings.HasPrefix(rawURL, "/") {
			rawURL = "/" + rawURL
		}
		return method, "", rawURL, "", protocol
	}
	host = parsed.Host
	path = parsed.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	queryString = parsed.RawQuery
	return method, host, path, queryString, protocol
}

func calculateALBResponseTimeMs(fields []string) (int, bool) {
	var total float64
	found := false
	for _, pos := range []int{albFieldRequestProcessingTime, albFieldTargetProcessingTime, albFieldResponseProcessingTime} {
		if pos >= len(fields) {
			continue
		}
		v := fields[pos]
		if v == "-" || v == "-1" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		total += f
		found = true
	}
	if !found {
		return 0, false
	}
	return int(total * 1000), true
}

// shlexSplit tokenizes a string the way Python's shlex.split does in POSIX
// mode: whitespace-separated tokens, with single and double quotes grouping
// runs of whitespace into one token and backslash escaping inside double
// quotes.
func shlexSplit(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			if quote == '"' && r == '\\' && i+1 < len(runes) {
				next := runes[i+1]
				if next == '"' || next == '\\' {
					cur.WriteRune(next)
					i++
					continue
				}
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
