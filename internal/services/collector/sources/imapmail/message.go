package imapmail

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

type attachment struct {
	filename string
	mimeType string
	data     []byte
}

type parsedMessage struct {
	subject   string
	from      string
	to        string
	messageID string
	date      time.Time

	text        string
	attachments []attachment
}

// parseMessage decodes one RFC 5322 message: headers, the first text part as
// the document body, and any parts carrying a filename as attachments
func parseMessage(raw []byte) (*parsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "parse message headers")
	}

	dec := new(mime.WordDecoder)
	out := &parsedMessage{
		subject:   decodeHeader(dec, msg.Header.Get("Subject")),
		from:      msg.Header.Get("From"),
		to:        msg.Header.Get("To"),
		messageID: strings.Trim(msg.Header.Get("Message-Id"), "<>"),
		date:      time.Now().UTC(),
	}
	if d, derr := msg.Header.Date(); derr == nil {
		out.date = d.UTC()
	}

	ct := msg.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := walkParts(multipart.NewReader(msg.Body, params["boundary"]), out); err != nil {
			return nil, err
		}
		return out, nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, err
	}
	out.text = string(body)
	return out, nil
}

func walkParts(mr *multipart.Reader, out *parsedMessage) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "read mime part")
		}

		ct := part.Header.Get("Content-Type")
		mediaType, params, merr := mime.ParseMediaType(ct)
		if merr != nil {
			mediaType = "application/octet-stream"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if err := walkParts(multipart.NewReader(part, params["boundary"]), out); err != nil {
				return err
			}
			continue
		}

		data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return err
		}

		if name := part.FileName(); name != "" {
			out.attachments = append(out.attachments, attachment{
				filename: name,
				mimeType: mediaType,
				data:     data,
			})
			continue
		}
		// first inline text part wins as the document body
		if out.text == "" && strings.HasPrefix(mediaType, "text/") {
			out.text = string(data)
		}
	}
}

func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "decode message body")
	}
	return data, nil
}

func decodeHeader(dec *mime.WordDecoder, s string) string {
	if decoded, err := dec.DecodeHeader(s); err == nil {
		return decoded
	}
	return s
}
