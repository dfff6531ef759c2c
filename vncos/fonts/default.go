package fonts

import (
	"sync"

	"tinygo.org/x/tinyfont/proggy"
)

var (
	defaultOnce sync.Once
	defaultFont *Font
	defaultErr  error
)

// Default returns the console font, rasterized once from proggy TinySZ8pt7b.
func Default() (*Font, error) {
	defaultOnce.Do(func() {
		defaultFont, defaultErr = FromFonter("proggy-tiny", &proggy.TinySZ8pt7b)
	})
	return defaultFont, defaultErr
}
