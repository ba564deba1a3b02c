package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_FIFOAndClose(t *testing.T) {
	mb := newMailbox[int]()
	for i := 0; i < 100; i++ {
		mb.put(i)
	}
	mb.close()
	mb.put(100)

	var got []int
	for v := range mb.out {
		got = append(got, v)
	}
	assert.Len(t, got, 100)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, 99, got[99])
}

func TestMailbox_Abort(t *testing.T) {
	mb := newMailbox[int]()
	mb.put(1)
	mb.put(2)
	mb.abort()
	mb.put(3)

	select {
	case <-drain(mb.out):
	case <-time.After(time.Second):
		t.Fatal("output not closed after abort")
	}
}

func drain(ch <-chan int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}
