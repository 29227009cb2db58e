package sse

import (
	"context"
	"sync"

	"ms-attendance/internal/models"
)

// ScanFeed fans successful redemptions out to the SSE clients watching an
// event's check-in desk.
type ScanFeed struct {
	clients     map[string][]chan models.VoucherRedeemedEvent
	clientMutex sync.RWMutex
	bufferSize  int
}

// NewScanFeed creates an empty feed
func NewScanFeed() *ScanFeed {
	return &ScanFeed{
		clients:    make(map[string][]chan models.VoucherRedeemedEvent),
		bufferSize: 10,
	}
}

// Subscribe adds a client to the event's redemptions. The channel is closed
// once ctx is done.
func (f *ScanFeed) Subscribe(ctx context.Context, eventID string) <-chan models.VoucherRedeemedEvent {
	clientChan := make(chan models.VoucherRedeemedEvent, f.bufferSize)

	f.clientMutex.Lock()
	f.clients[eventID] = append(f.clients[eventID], clientChan)
	f.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		f.removeClient(eventID, clientChan)
	}()

	return clientChan
}

// EmitRedemption broadcasts a redemption to the clients of its event. Slow
// clients miss the message instead of blocking the scan.
func (f *ScanFeed) EmitRedemption(event models.VoucherRedeemedEvent) {
	f.clientMutex.RLock()
	defer f.clientMutex.RUnlock()

	for _, clientChan := range f.clients[event.EventID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (f *ScanFeed) removeClient(eventID string, clientChan chan models.VoucherRedeemedEvent) {
	f.clientMutex.Lock()
	defer f.clientMutex.Unlock()

	clients := f.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			f.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(f.clients[eventID]) == 0 {
		delete(f.clients, eventID)
	}
}

// ClientCount returns the number of clients watching an event
func (f *ScanFeed) ClientCount(eventID string) int {
	f.clientMutex.RLock()
	defer f.clientMutex.RUnlock()
	return len(f.clients[eventID])
}
