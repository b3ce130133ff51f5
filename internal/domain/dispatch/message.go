package dispatch

const (
	HeaderSourceFile  = "source-file"
	HeaderJobID       = "job-id"
	HeaderContentType = "content-type"
)

type Header struct {
	Key   string
	Value string
}

// TransactionMessage is one file published to the broker. Key is the file
// name and drives partition assignment; the source-file header carries the
// full path the file was read from.
type TransactionMessage struct {
	Key         string
	Payload     []byte
	ContentType string
	Headers     []Header
}

func NewTransactionMessage(jobID string, file FileEntry, payload []byte) TransactionMessage {
	contentType := file.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(file.Name)
	}
	return TransactionMessage{
		Key:         file.Name,
		Payload:     payload,
		ContentType: contentType,
		Headers: []Header{
			{Key: HeaderSourceFile, Value: file.FullPath},
			{Key: HeaderJobID, Value: jobID},
			{Key: HeaderContentType, Value: contentType},
		},
	}
}

func (m TransactionMessage) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}
