// contextd is a local context engine: it indexes a workspace into chunks,
// symbols, and embeddings, keeps the index live via filesystem watching,
// and serves hybrid search over the result.
package main

import (
	"os"

	"github.com/agentfusion/contextd/cmd/contextd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
