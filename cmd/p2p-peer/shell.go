package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"

	"github.com/p2p-swarm/p2p-transfer/internal/orchestrator"
)

// runShell starts the optional debug console over a running
// Orchestrator. Grounded on the teacher's peerExecutor/peerCompleter
// pair in cmd/p2p-transfer/peer.go; the command set is narrower since
// this shell is inspection-only, not a way to drive the protocol.
func runShell(orch *orchestrator.Orchestrator) {
	fmt.Println("p2p-peer interactive shell — type 'help' for commands")
	prompt.New(
		func(in string) { shellExecutor(in, orch) },
		shellCompleter,
		prompt.OptionPrefix("p2p-peer> "),
		prompt.OptionTitle("p2p-peer"),
	).Run()
}

func shellExecutor(in string, orch *orchestrator.Orchestrator) {
	fields := strings.Fields(strings.TrimSpace(in))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "exit", "quit":
		os.Exit(0)
	case "status":
		for _, st := range orch.Status() {
			fmt.Printf("%-20s have=%d/%d assembled=%v\n", st.FileName, len(st.HaveChunks), st.TotalChunks, st.Assembled)
		}
	case "chunks":
		if len(fields) < 2 {
			fmt.Println("usage: chunks <file_name>")
			return
		}
		fmt.Println(orch.ChunksOf(fields[1]))
	case "help":
		fmt.Println("status            show every requested file's download progress")
		fmt.Println("chunks <file>     list chunk ids held locally for a file")
		fmt.Println("exit              quit the shell")
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
}

func shellCompleter(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "status", Description: "show download progress"},
		{Text: "chunks", Description: "list local chunks for a file"},
		{Text: "exit", Description: "quit the shell"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}
