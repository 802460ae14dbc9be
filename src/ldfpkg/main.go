// ldfpkg builds Debian packages with sbuild on disposable workers.
package main

import (
	"github.com/bitswalk/ldfpkg/src/ldfpkg/core"
)

func main() {
	core.Execute()
}
