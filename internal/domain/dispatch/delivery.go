package dispatch

import (
	"strconv"
	"time"
)

// Delivery is a transaction message read back from the broker together with
// its log position.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Headers   []Header
	Time      time.Time
}

func (d Delivery) Header(key string) (string, bool) {
	for _, h := range d.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Position renders topic/partition@offset for logs.
func (d Delivery) Position() string {
	return d.Topic + "/" + strconv.Itoa(d.Partition) + "@" + strconv.FormatInt(d.Offset, 10)
}
