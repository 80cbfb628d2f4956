package gmail

import (
	"encoding/base64"
	"encoding/json"

	gmailapi "google.golang.org/api/gmail/v1"

	"gmail-archiver/internal/domain"
)

func toRecord(msg *gmailapi.Message) (domain.MessageRecord, error) {
	rec := domain.MessageRecord{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		HistoryID:    msg.HistoryId,
		InternalDate: msg.InternalDate,
		SizeEstimate: msg.SizeEstimate,
	}
	if msg.Payload == nil {
		return rec, nil
	}
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		rec.Headers = append(rec.Headers, domain.Header{Name: h.Name, Value: h.Value})
	}
	rec.Body = textBody(msg.Payload)

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return domain.MessageRecord{}, err
	}
	rec.Payload = raw
	return rec, nil
}

// textBody returns the first decodable text/plain part, falling back to the
// first text/html part.
func textBody(p *gmailapi.MessagePart) string {
	if plain := findPart(p, "text/plain"); plain != "" {
		return plain
	}
	return findPart(p, "text/html")
}

func findPart(p *gmailapi.MessagePart, mimeType string) string {
	if p == nil {
		return ""
	}
	if p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
		if data, ok := decodeData(p.Body.Data); ok {
			return data
		}
	}
	for _, part := range p.Parts {
		if s := findPart(part, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// decodeData accepts both padded and unpadded base64url.
func decodeData(s string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(b), true
	}
	return "", false
}
