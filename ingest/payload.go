package ingest

import (
	"sync"

	"github.com/ammarfaizi2/green-tea-bot/tdclient"
)

// messagePayload bundles one update with the cached entity details it
// was scheduled with. Instances are pooled; releasePayload is the job
// destructor and must run exactly once per acquire.
type messagePayload struct {
	msg       *tdclient.Message
	chatTitle string
	sender    *tdclient.User
}

var payloadPool = sync.Pool{
	New: func() any { return &messagePayload{} },
}

func acquirePayload() *messagePayload {
	return payloadPool.Get().(*messagePayload)
}

func releasePayload(payload any) {
	p, ok := payload.(*messagePayload)
	if !ok {
		return
	}
	p.msg = nil
	p.chatTitle = ""
	p.sender = nil
	payloadPool.Put(p)
}
