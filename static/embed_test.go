package static_test

import (
	"testing"

	"github.com/euforicio/markpad/static"
)

func TestEmbeddedAssetsPresent(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"css/app.css", "js/app.js"} {
		if !static.Has(name) {
			t.Fatalf("embedded asset missing: %s", name)
		}
	}
	if static.Has("js/missing.js") {
		t.Fatalf("Has must report absent files as missing")
	}
}
