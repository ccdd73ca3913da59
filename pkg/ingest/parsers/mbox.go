package parsers

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"iter"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
)

// MboxAttachment is an attachment extracted from an email message.
type MboxAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
	Size        int
}

// MboxMessage is a parsed email from an mbox file. It is a transfer object;
// ingesters map it onto the Email entity.
type MboxMessage struct {
	MessageID    string
	FromAddress  string
	FromName     string
	ToAddresses  []string
	CcAddresses  []string
	BccAddresses []string
	Subject      string
	Date         *time.Time
	BodyPlain    string
	BodyHTML     string
	Headers      map[string]string
	Attachments  []MboxAttachment
	InReplyTo    string
	References   []string
}

var headerDecoder = &mime.WordDecoder{}

// ParseMbox yields each message of an mbox file in file order. A message
// that fails to parse is logged and skipped; the sequence continues with
// the next message. The sequence is restartable.
func ParseMbox(path string) iter.Seq2[*MboxMessage, error] {
	return func(yield func(*MboxMessage, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield(nil, &ParseError{Path: path, Err: err})
			return
		}
		defer file.Close()

		for raw := range splitMbox(file) {
			msg, err := parseEmailMessage(raw)
			if err != nil {
				logger.Log.WithError(err).Warn("failed to parse email message")
				continue
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// splitMbox splits an mbox stream on "From " separator lines.
func splitMbox(r io.Reader) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

		var current bytes.Buffer
		flush := func() bool {
			if current.Len() == 0 {
				return true
			}
			raw := make([]byte, current.Len())
			copy(raw, current.Bytes())
			current.Reset()
			return yield(raw)
		}

		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "From ") {
				if !flush() {
					return
				}
				continue
			}
			// mbox ">From " quoting
			if strings.HasPrefix(line, ">From ") {
				line = line[1:]
			}
			current.WriteString(line)
			current.WriteByte('\n')
		}
		flush()
	}
}

// ParseEmail parses a single RFC 822 message (e.g. the contents of an
// .eml file).
func ParseEmail(raw []byte) (*MboxMessage, error) {
	return parseEmailMessage(raw)
}

func parseEmailMessage(raw []byte) (*MboxMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	result := &MboxMessage{Headers: map[string]string{}}

	result.MessageID = strings.Trim(msg.Header.Get("Message-ID"), "<> ")
	result.FromAddress, result.FromName = parseAddress(msg.Header.Get("From"))
	result.ToAddresses = parseAddressList(msg.Header.Get("To"))
	result.CcAddresses = parseAddressList(msg.Header.Get("Cc"))
	result.BccAddresses = parseAddressList(msg.Header.Get("Bcc"))
	result.Subject = decodeHeader(msg.Header.Get("Subject"))

	if dateStr := msg.Header.Get("Date"); dateStr != "" {
		if t, ok := ParseTime(dateStr); ok {
			result.Date = &t
		}
	}

	result.InReplyTo = strings.Trim(msg.Header.Get("In-Reply-To"), "<> ")
	for _, ref := range strings.Fields(msg.Header.Get("References")) {
		if trimmed := strings.Trim(ref, "<>"); trimmed != "" {
			result.References = append(result.References, trimmed)
		}
	}

	for key, values := range msg.Header {
		if len(values) > 0 {
			result.Headers[key] = values[0]
		}
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if boundary := params["boundary"]; boundary != "" {
			walkParts(multipart.NewReader(msg.Body, boundary), result)
		}
	} else {
		body, err := decodeTransferEncoding(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		if err == nil {
			assignBody(result, mediaType, string(body))
		}
	}

	return result, nil
}

func walkParts(reader *multipart.Reader, result *MboxMessage) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return
		}

		contentType := part.Header.Get("Content-Type")
		mediaType, params, ctErr := mime.ParseMediaType(contentType)
		if ctErr != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				walkParts(multipart.NewReader(part, boundary), result)
			}
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		if strings.Contains(strings.ToLower(disposition), "attachment") {
			extractAttachment(part, mediaType, result)
			continue
		}

		// multipart.Part decodes quoted-printable itself; base64 is ours.
		content, err := decodeTransferEncoding(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			continue
		}
		assignBody(result, mediaType, string(content))
	}
}

func assignBody(result *MboxMessage, mediaType, content string) {
	switch {
	case mediaType == "text/plain" && result.BodyPlain == "":
		result.BodyPlain = content
	case mediaType == "text/html" && result.BodyHTML == "":
		result.BodyHTML = content
	}
}

func extractAttachment(part *multipart.Part, mediaType string, result *MboxMessage) {
	content, err := decodeTransferEncoding(part, part.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		logger.Log.WithError(err).Warn("failed to extract attachment")
		return
	}

	filename := part.FileName()
	if filename != "" {
		filename = decodeHeader(filename)
	}

	result.Attachments = append(result.Attachments, MboxAttachment{
		Filename:    filename,
		ContentType: mediaType,
		Content:     content,
		Size:        len(content),
	})
}

// decodeTransferEncoding reads a body applying its Content-Transfer-Encoding.
// multipart.Part already strips quoted-printable, so only base64 and the
// top-level (non-multipart) quoted-printable path need handling here.
func decodeTransferEncoding(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, newLineStrippingReader(r)))
	case "quoted-printable":
		if _, isPart := r.(*multipart.Part); !isPart {
			return io.ReadAll(quotedprintable.NewReader(r))
		}
	}
	return io.ReadAll(r)
}

// newLineStrippingReader removes CR/LF so base64 bodies with line wrapping
// decode cleanly.
func newLineStrippingReader(r io.Reader) io.Reader {
	return &lineStrippingReader{src: bufio.NewReader(r)}
}

type lineStrippingReader struct {
	src *bufio.Reader
}

func (l *lineStrippingReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.src.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if b == '\r' || b == '\n' {
			continue
		}
		p[n] = b
		n++
	}
	return n, nil
}

// decodeHeader decodes RFC 2047 encoded-word sequences, falling back to the
// raw value on failure.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func parseAddress(header string) (address, name string) {
	header = decodeHeader(header)
	if header == "" {
		return "", ""
	}

	addr, err := mail.ParseAddress(header)
	if err == nil {
		return addr.Address, addr.Name
	}

	if strings.Contains(header, "@") {
		return strings.TrimSpace(header), ""
	}
	return "", ""
}

func parseAddressList(header string) []string {
	header = decodeHeader(header)
	if header == "" {
		return nil
	}

	var addresses []string
	parsed, err := mail.ParseAddressList(header)
	if err == nil {
		for _, a := range parsed {
			addresses = append(addresses, a.Address)
		}
		return addresses
	}

	for _, part := range strings.Split(header, ",") {
		if addr, _ := parseAddress(strings.TrimSpace(part)); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}
