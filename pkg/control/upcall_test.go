package control

import (
	"testing"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/flowkey"
)

func TestPushExceptionThenDecodeUpcallRoundTrips(t *testing.T) {
	pool := bufpool.New(2, 1, 2)
	buf := pool.AllocFrame(0, []byte{0xde, 0xad, 0xbe, 0xef})
	key := flowkey.Key{InPort: 0x10, EtherType: 0x0800, TPSrc: 12345, TPDst: 80}
	ch := NewChannel(0, 16)

	if !PushException(ch, UpcallMiss, key, buf) {
		t.Fatal("PushException() = false, want true")
	}

	got, ok := ch.Exception.Pop()
	if !ok {
		t.Fatal("no buffer on exception ring")
	}

	reason, decodedKey, payload := DecodeUpcall(got)
	if reason != UpcallMiss {
		t.Errorf("reason = %v, want UpcallMiss", reason)
	}
	if decodedKey != key {
		t.Errorf("key = %+v, want %+v", decodedKey, key)
	}
	if string(payload) != "\xde\xad\xbe\xef" {
		t.Errorf("payload = %x, want deadbeef", payload)
	}
}

func TestPushExceptionDropsWhenHeaderExceedsHeadroom(t *testing.T) {
	pool := bufpool.New(2, 1, 2)
	buf := pool.AllocFrame(0, []byte{0x01})

	// Exhaust the buffer's headroom so the upcall header can't fit.
	filler := make([]byte, bufpool.Headroom)
	buf.PrependHeadroom(filler)

	ch := NewChannel(0, 16)
	if PushException(ch, UpcallMiss, flowkey.Key{}, buf) {
		t.Error("PushException() = true, want false when header exceeds headroom")
	}
	if _, ok := ch.Exception.Pop(); ok {
		t.Error("buffer landed on exception ring despite header not fitting")
	}
}
