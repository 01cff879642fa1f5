package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_SwapReturnsPreviousSnapshot(t *testing.T) {
	initial := DefaultConfig()
	h := NewHolder(initial, "/home/u/.config/save-to-google-photos/config.toml")

	assert.Same(t, initial, h.Config())
	assert.Zero(t, h.Generation())
	assert.Equal(t, "/home/u/.config/save-to-google-photos/config.toml", h.Path())

	next := DefaultConfig()
	next.AlbumID = "album-2"

	prev, gen := h.Swap(next)
	assert.Same(t, initial, prev)
	assert.Equal(t, uint64(1), gen)
	assert.Same(t, next, h.Config())
	assert.Equal(t, uint64(1), h.Generation())
}

func TestHolder_AllowedOriginsIsACopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"abcdefghijklmnop"}
	h := NewHolder(cfg, "")

	got := h.AllowedOrigins()
	got[0] = "tampered"

	assert.Equal(t, []string{"abcdefghijklmnop"}, h.AllowedOrigins())
	assert.Empty(t, h.Path())
}

func TestHolder_ReadersDuringReloads(t *testing.T) {
	h := NewHolder(DefaultConfig(), "")

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 200 {
				assert.NotNil(t, h.Config())
				_ = h.AllowedOrigins()
			}
		}()
	}

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 50 {
				cfg := DefaultConfig()
				cfg.AllowedOrigins = []string{"ext"}
				h.Swap(cfg)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, uint64(200), h.Generation())
}
